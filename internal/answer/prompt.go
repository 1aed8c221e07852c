package answer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/menurag/internal/models"
)

// SystemPrompt instructs the generator to answer in Vietnamese from the supplied context only.
const SystemPrompt = "You are a helpful assistant specializing in Vietnamese restaurants and food. " +
	"Use the provided context to answer the question in Vietnamese. " +
	"If the information is not in the context, say you don't have that information."

// Apology is returned in place of an answer when generation fails.
const Apology = "I'm sorry, I encountered an error while generating an answer. Please try again later."

// MaxSampleItems caps the menu items listed per restaurant in the context block.
const MaxSampleItems = 5

// BuildContext renders matched restaurants and menu items as the context block of the prompt.
// The output depends only on its inputs.
func BuildContext(restaurants []models.RestaurantResult, items []models.MenuItemResult) string {
	var b strings.Builder
	b.WriteString("Restaurant information:\n")
	for _, r := range restaurants {
		fmt.Fprintf(&b, "Restaurant: %s\n", r.Restaurant.Name)
		fmt.Fprintf(&b, "Address: %s\n", r.Restaurant.Address)
		b.WriteString("Sample menu items:\n")
		for i, it := range r.Restaurant.Items {
			if i == MaxSampleItems {
				break
			}
			fmt.Fprintf(&b, "- %s\n", it.Text())
		}
		b.WriteString("\n")
	}
	b.WriteString("Specific menu items that match your query:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s at %s\n", it.Item.Text(), it.RestaurantName)
	}
	return b.String()
}

// UserPrompt joins the context block and the question.
func UserPrompt(context, question string) string {
	return "Context: " + context + "\n\nQuestion: " + question + "\n\nAnswer:"
}
