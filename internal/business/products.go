package business

import (
	"fmt"
	"strings"
)

// Product is one catalog item a tenant sells through the bot.
type Product struct {
	ID          string
	AccountID   string
	Name        string
	Description string
	PriceCents  int
	Currency    string
	Category    string
	ImageURL    string
}

// FormatProductsForPrompt renders the catalog as the plain-text block
// the AI prompt embeds. Prices are shown the Brazilian way for BRL.
func FormatProductsForPrompt(products []Product) string {
	if len(products) == 0 {
		return "Nenhum produto cadastrado no momento."
	}

	var b strings.Builder
	b.WriteString("Produtos disponíveis:\n")
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(p.Name)
		if p.Description != "" {
			fmt.Fprintf(&b, " (%s)", p.Description)
		}
		fmt.Fprintf(&b, ": %s", formatPrice(p.PriceCents, p.Currency))
		if p.Category != "" {
			fmt.Fprintf(&b, " [%s]", p.Category)
		}
		if p.ImageURL != "" {
			fmt.Fprintf(&b, " [IMAGEM: %s]", p.ImageURL)
		}
	}
	return b.String()
}

// FindProductByName returns the first product whose name appears in the
// text, or whose name contains the text, ignoring case. Used to attach
// a product image when the customer mentions an item.
func FindProductByName(products []Product, text string) *Product {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	for i := range products {
		name := strings.ToLower(products[i].Name)
		if name == "" {
			continue
		}
		if strings.Contains(needle, name) || strings.Contains(name, needle) {
			return &products[i]
		}
	}
	return nil
}

func formatPrice(cents int, currency string) string {
	value := float64(cents) / 100
	if currency == "" || strings.EqualFold(currency, "BRL") {
		return "R$ " + strings.Replace(fmt.Sprintf("%.2f", value), ".", ",", 1)
	}
	return fmt.Sprintf("%.2f %s", value, currency)
}
