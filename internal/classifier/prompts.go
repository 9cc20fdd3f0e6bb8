package classifier

import "fmt"

// transcriptionPrompt asks the service to read one page of a scanned
// document and return its text verbatim.
func transcriptionPrompt(pageNumber int) string {
	return fmt.Sprintf(
		"You are a document transcriber. Transcribe ALL visible text on page %d "+
			"of the attached bank statement, verbatim and in reading order.\n\n"+
			"Pay special attention to:\n"+
			"- any section header that introduces itemized account activity\n"+
			"- the terminal marker line (such as a total interest line) that ends the itemization\n\n"+
			"Return plain text only. Do not summarize, reformat, or omit anything.",
		pageNumber)
}

// statementPrompt is the fixed instruction payload for structured
// transaction extraction. The schema and the extraction policy are
// part of the service contract: field names here must match what the
// parsing side expects.
const statementPrompt = "You are a bank statement parser. Extract transaction data from the " +
	"statement text below and return structured JSON.\n\n" +
	"For each transaction, extract:\n" +
	"- date (YYYY-MM-DD format)\n" +
	"- description (clean merchant/transaction description)\n" +
	"- amount (negative for debits, positive for credits)\n" +
	"- balance (running balance if available, else null)\n" +
	"- category (best guess based on description: groceries, utilities, entertainment, transport, subscription, etc.)\n\n" +
	"Return JSON in this exact format:\n" +
	"{\n" +
	"    \"account_info\": {\n" +
	"        \"account_number\": \"masked account number if found\",\n" +
	"        \"bank_name\": \"bank name if identifiable\",\n" +
	"        \"statement_period\": \"date range if found\"\n" +
	"    },\n" +
	"    \"transactions\": [\n" +
	"        {\n" +
	"            \"date\": \"2024-01-15\",\n" +
	"            \"description\": \"GROCERY STORE PURCHASE\",\n" +
	"            \"amount\": -45.67,\n" +
	"            \"balance\": 1234.56,\n" +
	"            \"category\": \"groceries\"\n" +
	"        }\n" +
	"    ]\n" +
	"}\n\n" +
	"Extraction policy:\n" +
	"- Include ONLY true transaction line items, starting at the itemized-activity marker\n" +
	"  and stopping at the terminal total-interest marker.\n" +
	"- Ignore headers, summary sections, and running totals.\n" +
	"- Return ONLY valid raw JSON. Do NOT wrap the response in code fences or Markdown.\n"

// recurringPrompt is the fixed instruction payload for recurring
// payment analysis over an already-normalized transaction set.
const recurringPrompt = "You are a financial analyst. Analyze the bank transactions below to " +
	"identify recurring payments.\n\n" +
	"Look for:\n" +
	"- similar merchant names or descriptions that appear multiple times\n" +
	"- regular payment amounts (exact or similar)\n" +
	"- consistent timing patterns (monthly, weekly, etc.)\n\n" +
	"Group similar transactions and identify recurring patterns.\n\n" +
	"Return JSON in this format:\n" +
	"{\n" +
	"    \"recurring_payments\": [\n" +
	"        {\n" +
	"            \"merchant_name\": \"Netflix\",\n" +
	"            \"category\": \"entertainment\",\n" +
	"            \"average_amount\": -15.99,\n" +
	"            \"frequency\": \"monthly\",\n" +
	"            \"occurrences\": 3,\n" +
	"            \"last_payment_date\": \"2024-01-15\",\n" +
	"            \"confidence\": \"high\"\n" +
	"        }\n" +
	"    ],\n" +
	"    \"summary\": {\n" +
	"        \"total_recurring_amount\": -150.50,\n" +
	"        \"recurring_payment_count\": 5,\n" +
	"        \"largest_recurring_payment\": \"Rent - $1200.00\"\n" +
	"    }\n" +
	"}\n\n" +
	"Return ONLY valid raw JSON. Do NOT wrap the response in code fences or Markdown.\n"
