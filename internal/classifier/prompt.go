package classifier

import (
	"fmt"
	"strings"
	"time"
)

const systemPromptHeader = `You are an expert at parsing Indian bank SMS messages. Your task is to:
1. Determine if the SMS is about a financial transaction
2. If it's a transaction, extract key details in a structured format

SMS Format Examples:
- Transaction: "Rs. 1,234.56 debited from your HDFC Bank account ending 1234 on 01-Jan-25 at MERCHANT NAME"
- OTP: "OTP is 123456 for your HDFC Bank transaction"
- Balance: "Your HDFC Bank account balance is Rs. 10,000.00"
`

const systemPromptSchema = `
Categories should be descriptive (e.g., "Food & Dining", "Shopping", "Transportation", "Utilities", "Entertainment")

You must respond with valid JSON in this exact format:
{
  "isTransaction": boolean,
  "amount": number (only if isTransaction is true),
  "transactionDate": "YYYY-MM-DDTHH:mm:ss.sssZ" (only if isTransaction is true),
  "category": "string" (only if isTransaction is true),
  "note": "string" (only if isTransaction is true),
  "source": "string" (only if isTransaction is true, must be one of the sources above),
  "confidence": number between 0 and 1 (only if isTransaction is true)
}

If isTransaction is false, only include "isTransaction": false.`

// DefaultPromptSources are used when no catalogue is configured.
var DefaultPromptSources = []string{
	"HDFC Bank account",
	"HDFC Credit Card",
	"ICICI Bank Account",
	"ICICI Credit card",
}

// SystemPrompt is fixed for a given source list so identical messages
// always produce identical requests.
func SystemPrompt(sources []string) string {
	if len(sources) == 0 {
		sources = DefaultPromptSources
	}

	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\nTransaction Sources (exactly one of these):\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- %q\n", s)
	}
	b.WriteString(systemPromptSchema)
	return b.String()
}

func UserPrompt(in Input) string {
	return fmt.Sprintf("Parse this SMS:\nSender: %s\nMessage: %s\nReceived at: %s",
		in.Sender, in.Message, in.ReceivedAt.UTC().Format(time.RFC3339))
}
