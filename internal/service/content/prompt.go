package content

import (
	"fmt"
	"strings"

	"github.com/splax/sitepress/internal/domain"
)

// BuildPrompt describes the business for a generation request.
func BuildPrompt(business domain.BusinessRecord, theme domain.Theme) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a one-page website in Bahasa Indonesia for the %s business %q.\n", business.Category, business.BusinessName)
	if business.Description != "" {
		fmt.Fprintf(&sb, "About: %s\n", business.Description)
	}
	fmt.Fprintf(&sb, "Phone: %s\nAddress: %s\n", business.Phone, business.Address)
	if business.WhatsApp != "" {
		fmt.Fprintf(&sb, "WhatsApp: %s\n", business.WhatsApp)
	}
	if business.Email != "" {
		fmt.Fprintf(&sb, "Email: %s\n", business.Email)
	}
	if business.Instagram != "" {
		fmt.Fprintf(&sb, "Instagram: %s\n", business.Instagram)
	}
	if business.LogoURL != "" {
		fmt.Fprintf(&sb, "Logo: %s\n", business.LogoURL)
	}
	sb.WriteString("Products:\n")
	for _, category := range business.Products {
		fmt.Fprintf(&sb, "- %s\n", category.CategoryName)
		for _, item := range category.Items {
			if item.Price.IsPositive() {
				fmt.Fprintf(&sb, "  - %s (Rp %s)", item.Name, item.Price.StringFixed(0))
			} else {
				fmt.Fprintf(&sb, "  - %s", item.Name)
			}
			if item.Description != "" {
				fmt.Fprintf(&sb, ": %s", item.Description)
			}
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Colors: primary %s, secondary %s, accent %s, background %s, text %s.\n",
		theme.Primary, theme.Secondary, theme.Accent, theme.Background, theme.Text)
	sb.WriteString("Declare the colors as CSS custom properties --primary, --secondary, --accent, --background and --text, " +
		"and use --base-font-size, --text-align, --font-family and --radius for typography and layout.\n")
	if business.CustomPrompt != "" {
		fmt.Fprintf(&sb, "Additional instructions from the owner: %s\n", business.CustomPrompt)
	}
	return sb.String()
}
