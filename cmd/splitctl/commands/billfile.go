package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/splitit/internal/extraction"
	"github.com/mmynk/splitit/internal/models"
	"github.com/mmynk/splitit/internal/workflow"
)

// BillFile is the YAML description of a bill:
//
//	tax: 1.20
//	members: [Alice, Bob]
//	items:
//	  - name: Burger
//	    price: 10.00
//	    assigned_to: [Alice, Bob]
type BillFile struct {
	Subtotal string         `yaml:"subtotal,omitempty"`
	Tax      string         `yaml:"tax,omitempty"`
	Total    string         `yaml:"total,omitempty"`
	Members  []string       `yaml:"members"`
	Items    []BillFileItem `yaml:"items"`
}

type BillFileItem struct {
	Name       string   `yaml:"name"`
	Price      string   `yaml:"price"`
	AssignedTo []string `yaml:"assigned_to,omitempty"`
}

// ReadBillFile decodes a bill file.
func ReadBillFile(r io.Reader) (*BillFile, error) {
	var bf BillFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("failed to parse bill file: %w", err)
	}
	return &bf, nil
}

// Receipt converts the file into the receipt extraction would have produced.
// Subtotal defaults to the item sum and total to subtotal plus tax.
func (bf *BillFile) Receipt() (*models.Receipt, error) {
	r := &models.Receipt{}
	sum := decimal.Zero
	for i, it := range bf.Items {
		price, err := parseAmount(it.Price, fmt.Sprintf("items[%d].price", i))
		if err != nil {
			return nil, err
		}
		r.Lines = append(r.Lines, models.ReceiptLine{Name: it.Name, Price: price})
		sum = sum.Add(price)
	}

	var err error
	if r.Tax, err = optionalAmount(bf.Tax, "tax", decimal.Zero); err != nil {
		return nil, err
	}
	if r.Subtotal, err = optionalAmount(bf.Subtotal, "subtotal", sum); err != nil {
		return nil, err
	}
	if r.Total, err = optionalAmount(bf.Total, "total", r.Subtotal.Add(r.Tax)); err != nil {
		return nil, err
	}
	return r, nil
}

// Run drives a controller through the whole workflow and returns it in
// the Summary stage.
func (bf *BillFile) Run(ctx context.Context, tipPercent decimal.Decimal) (*workflow.Controller, error) {
	receipt, err := bf.Receipt()
	if err != nil {
		return nil, err
	}

	c := workflow.New(extraction.ExtractorFunc(func(context.Context, []byte) (*models.Receipt, error) {
		return receipt, nil
	}))
	if _, err := c.Upload(ctx, []byte("file")); err != nil {
		return nil, err
	}

	// Assignees are given by name, so names must be unique within a file.
	ids := make(map[string]string, len(bf.Members))
	for _, name := range bf.Members {
		if _, dup := ids[strings.TrimSpace(name)]; dup {
			return nil, fmt.Errorf("member %q is listed twice", name)
		}
		m, err := c.AddMember(name)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		ids[m.Name] = m.ID
	}
	if _, err := c.Advance(); err != nil {
		return nil, err
	}

	items := c.State().Items
	for i, it := range bf.Items {
		for _, name := range it.AssignedTo {
			id, ok := ids[strings.TrimSpace(name)]
			if !ok {
				return nil, fmt.Errorf("item %q is assigned to unknown member %q", it.Name, name)
			}
			if err := c.ToggleAssignment(items[i].ID, id); err != nil {
				return nil, err
			}
		}
	}
	if _, err := c.Advance(); err != nil {
		return nil, err
	}
	if err := c.SetTipPercent(tipPercent); err != nil {
		return nil, err
	}
	return c, nil
}

// MemberID returns the ID of the member called name.
func MemberID(c *workflow.Controller, name string) (string, bool) {
	for _, m := range c.State().Members {
		if m.Name == name {
			return m.ID, true
		}
	}
	return "", false
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	return d, nil
}

func optionalAmount(s, field string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return parseAmount(s, field)
}

// billFileFromReceipt renders an extracted receipt as a bill file skeleton.
func billFileFromReceipt(r *models.Receipt) *BillFile {
	bf := &BillFile{
		Subtotal: r.Subtotal.StringFixed(2),
		Tax:      r.Tax.StringFixed(2),
		Total:    r.Total.StringFixed(2),
		Members:  []string{},
	}
	for _, l := range r.Lines {
		bf.Items = append(bf.Items, BillFileItem{Name: l.Name, Price: l.Price.StringFixed(2)})
	}
	return bf
}
