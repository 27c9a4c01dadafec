package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an AI assistant for a large financial institution. Your task is to provide accurate and helpful information to customer service agents based on the query, relevant information, and context you are given.

Your responses must:
1. Be professional and compliant with financial regulations
2. Rely on the relevant information provided, not on guesses
3. Be tailored to the specific query and customer context
4. Be concise`

// CallerContext is the optional caller-supplied context forwarded verbatim to
// the model.
type CallerContext struct {
	CustomerID           string   `json:"customerId,omitempty"`
	AccountType          string   `json:"accountType,omitempty"`
	PreviousInteractions []string `json:"previousInteractions,omitempty"`
}

func (cc CallerContext) IsZero() bool {
	return cc.CustomerID == "" && cc.AccountType == "" && len(cc.PreviousInteractions) == 0
}

func (cc CallerContext) render() string {
	if cc.IsZero() {
		return "None provided"
	}

	var b strings.Builder
	if cc.CustomerID != "" {
		fmt.Fprintf(&b, "Customer ID: %s\n", cc.CustomerID)
	}
	if cc.AccountType != "" {
		fmt.Fprintf(&b, "Account type: %s\n", cc.AccountType)
	}
	if len(cc.PreviousInteractions) > 0 {
		b.WriteString("Previous interactions:\n")
		for _, p := range cc.PreviousInteractions {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildUserPrompt(query, retrievedContext string, caller CallerContext) string {
	relevant := retrievedContext
	if strings.TrimSpace(relevant) == "" {
		relevant = "No relevant information found"
	}

	return fmt.Sprintf(`Query: %s

Relevant Information:
%s

Context:
%s

Please provide a concise and accurate response to the query:`, query, relevant, caller.render())
}
