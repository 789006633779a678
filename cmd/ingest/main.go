// Command ingest turns a saved Walmart order-history page into a receipt
// upload. It scrapes the line items and totals out of the HTML, folds
// duplicate lines into counts, asks which items were taxed, copies the
// product images where the server serves them from, and posts the receipt
// followed by its items.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/pkg/logging"
)

type options struct {
	date      string
	server    string
	token     string
	payer     uint
	taxRate   string
	imagesDir string
}

func main() {
	logging.Setup()

	var opts options
	flag.StringVar(&opts.date, "date", "", "receipt date (YYYY-MM-DD); <date>.html must exist")
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&opts.token, "token", os.Getenv("TOKEN"), "identity token")
	flag.UintVar(&opts.payer, "payer", 0, "payer user ID (prompted when omitted)")
	flag.StringVar(&opts.taxRate, "tax-rate", "0.0800", "sales tax rate on taxed items")
	flag.StringVar(&opts.imagesDir, "images-dir", "static/receipt_items", "where to copy item images")
	flag.Parse()

	if opts.date == "" {
		fmt.Fprintln(os.Stderr, "Error: no receipt date given")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(&opts); err != nil {
		slog.Error("Ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	client := &apiClient{base: opts.server, token: opts.token}

	if opts.payer == 0 {
		payer, err := promptPayer(client)
		if err != nil {
			return err
		}
		opts.payer = payer
	}

	page, err := os.Open(opts.date + ".html")
	if err != nil {
		return fmt.Errorf("open order page: %w", err)
	}
	defer page.Close()

	receipt, err := parseOrderPage(page)
	if err != nil {
		return fmt.Errorf("parse order page: %w", err)
	}
	fmt.Printf("Parsed %d distinct items, subtotal $%s, tax $%s, total $%s\n",
		len(receipt.items), receipt.subtotal, receipt.tax, receipt.total)

	promptTaxed(receipt.items)

	if err := client.postReceipt(opts, receipt); err != nil {
		return err
	}
	if err := client.postItems(opts.date, receipt.items); err != nil {
		return err
	}
	if err := copyImages(opts, receipt.items); err != nil {
		return err
	}

	fmt.Println("Upload complete")
	return nil
}

// item is one aggregated receipt line.
type item struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Price  string `json:"price"`
	ImgSrc string `json:"img_src,omitempty"`
	Taxed  bool   `json:"taxed"`
}

type parsedReceipt struct {
	items    []*item
	subtotal string
	tax      string
	total    string
}

// parseOrderPage scrapes line items from the results list and the three
// dollar figures from the order summary.
func parseOrderPage(r io.Reader) (*parsedReceipt, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	results := findByClass(doc, "ul", "results-list")
	if results == nil {
		return nil, fmt.Errorf("no results-list element; is this a saved order page?")
	}

	receipt := &parsedReceipt{}
	byName := make(map[string]*item)
	for _, entry := range itemEntries(results) {
		name, src := firstImage(entry)
		if name == "" {
			continue
		}
		if existing, ok := byName[name]; ok {
			existing.Count++
			continue
		}
		price, ok := firstDollarText(entry)
		if !ok {
			return nil, fmt.Errorf("no price found for item %q", name)
		}
		parsed := &item{Name: name, Count: 1, Price: price, ImgSrc: filepath.Base(src)}
		byName[name] = parsed
		receipt.items = append(receipt.items, parsed)
	}
	if len(receipt.items) == 0 {
		return nil, fmt.Errorf("no items found")
	}

	summary := findByClass(doc, "div", "receipt-summary-v2")
	if summary == nil {
		return nil, fmt.Errorf("no receipt-summary-v2 element")
	}
	amounts := dollarTexts(summary)
	if len(amounts) < 3 {
		return nil, fmt.Errorf("expected subtotal, tax, and total in summary, found %d amounts", len(amounts))
	}
	// Subtotal and tax lead the summary table; the grand total is last.
	receipt.subtotal = amounts[0]
	receipt.tax = amounts[1]
	receipt.total = amounts[len(amounts)-1]
	return receipt, nil
}

// itemEntries returns the per-item wrapper nodes inside the results list.
func itemEntries(results *html.Node) []*html.Node {
	wrapper := firstElement(results, "div")
	if wrapper == nil {
		return nil
	}
	var entries []*html.Node
	for child := wrapper.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			entries = append(entries, child)
		}
	}
	return entries
}

// firstImage returns the alt text and src of the first <img> in the subtree.
func firstImage(n *html.Node) (alt, src string) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "img" {
			alt = attr(n, "alt")
			src = attr(n, "src")
			return true
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(n)
	return alt, src
}

// firstDollarText returns the first "$1.23"-shaped text in the subtree,
// without the dollar sign.
func firstDollarText(n *html.Node) (string, bool) {
	amounts := dollarTexts(n)
	if len(amounts) == 0 {
		return "", false
	}
	return amounts[0], true
}

// dollarTexts collects every dollar amount in the subtree in document order.
func dollarTexts(n *html.Node) []string {
	var amounts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if strings.HasPrefix(text, "$") && len(text) > 1 {
				amounts = append(amounts, strings.TrimPrefix(text, "$"))
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return amounts
}

// findByClass finds the first element with the given tag and class.
func findByClass(n *html.Node, tag, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return n
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findByClass(child, tag, class); found != nil {
			return found
		}
	}
	return nil
}

func firstElement(n *html.Node, tag string) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == tag {
			return child
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// promptTaxed asks y/n for every item.
func promptTaxed(items []*item) {
	scanner := bufio.NewScanner(os.Stdin)
	for _, it := range items {
		for {
			fmt.Printf("Is %s for $%s taxed? (y/n) ", it.Name, it.Price)
			if !scanner.Scan() {
				return
			}
			switch strings.TrimSpace(scanner.Text()) {
			case "y":
				it.Taxed = true
			case "n":
				it.Taxed = false
			default:
				fmt.Println("Expected y or n")
				continue
			}
			break
		}
	}
}

// promptPayer lists the household and reads a valid payer ID.
func promptPayer(client *apiClient) (uint, error) {
	var users []struct {
		UserID uint   `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := client.get("/api/users", &users); err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	ids := make(map[uint]bool, len(users))
	fmt.Println("Who paid?")
	for _, user := range users {
		fmt.Printf("%s (id %d)\n", user.Name, user.UserID)
		ids[user.UserID] = true
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Enter id: ")
		if !scanner.Scan() {
			return 0, fmt.Errorf("no payer chosen")
		}
		var id uint
		if _, err := fmt.Sscanf(strings.TrimSpace(scanner.Text()), "%d", &id); err == nil && ids[id] {
			return id, nil
		}
		fmt.Println("Unknown id")
	}
}

// copyImages copies each item's product image next to the server's static
// files, under a per-date directory. Browsers save page assets in a
// "<name>_files" directory beside the page.
func copyImages(opts *options, items []*item) error {
	srcDir := opts.date + "_files"
	dstDir := filepath.Join(opts.imagesDir, opts.date)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	for _, it := range items {
		if it.ImgSrc == "" {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, it.ImgSrc), filepath.Join(dstDir, it.ImgSrc)); err != nil {
			slog.Warn("Failed to copy item image", "item", it.Name, "error", err)
		}
	}
	fmt.Printf("Images were put into %s\n", dstDir)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// apiClient is a minimal authenticated JSON client for the server.
type apiClient struct {
	base  string
	token string
}

func (c *apiClient) do(method, path string, body, dst any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		reply, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(reply))
	}
	if dst != nil {
		return json.NewDecoder(resp.Body).Decode(dst)
	}
	return nil
}

func (c *apiClient) get(path string, dst any) error {
	return c.do(http.MethodGet, path, nil, dst)
}

func (c *apiClient) postReceipt(opts *options, receipt *parsedReceipt) error {
	err := c.do(http.MethodPost, "/api/receipts", map[string]any{
		"date":     opts.date,
		"subtotal": receipt.subtotal,
		"tax":      receipt.tax,
		"total":    receipt.total,
		"tax_rate": opts.taxRate,
		"payer_id": opts.payer,
	}, nil)
	if err != nil {
		return fmt.Errorf("post receipt: %w", err)
	}
	return nil
}

func (c *apiClient) postItems(date string, items []*item) error {
	var resp struct {
		Created    int `json:"created"`
		Duplicates int `json:"duplicates"`
	}
	if err := c.do(http.MethodPost, "/api/receipts/"+date+"/items", map[string]any{"items": items}, &resp); err != nil {
		return fmt.Errorf("post items: %w", err)
	}
	fmt.Printf("Uploaded %d items (%d duplicates skipped)\n", resp.Created, resp.Duplicates)
	return nil
}
