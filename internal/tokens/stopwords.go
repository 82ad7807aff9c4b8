package tokens

import "slices"

// Stopword groups. They carry no information about what a transaction was
// for, only how it was paid or how the bank phrased it.
var (
	paymentProcessors = []string{
		"paypal", "stripe", "square", "shopify", "fastspring", "2checkout",
		"handy",
	}

	bankingBoilerplate = []string{
		"bank", "banking", "transfer", "payment", "deposit", "withdrawal",
		"transaction", "order", "purchase", "sale", "invoice", "factura",
		"ticket", "ref", "id", "trans", "tx", "via", "pago", "compra", "venta",
	}

	merchantGenerics = []string{
		"merchant", "vendor", "store", "shop", "retail", "online",
	}

	connectors = []string{
		// English
		"the", "a", "an", "to", "from", "and", "or", "of", "in", "on", "at", "by",
		// Spanish
		"de", "la", "el", "un", "una", "y", "o", "para", "por", "con", "sin",
	}
)

// DefaultStopwords returns a fresh copy of the built-in stopword list.
func DefaultStopwords() []string {
	words := slices.Concat(paymentProcessors, bankingBoilerplate, merchantGenerics, connectors)
	slices.Sort(words)
	return slices.Compact(words)
}
