package database

import "testing"

func TestStorefrontIndexesEnforceOneReceiptPerOrder(t *testing.T) {
	for _, ci := range storefrontIndexes() {
		if ci.collection != "payment_receipts" {
			continue
		}
		for _, m := range ci.models {
			if m.Options != nil && m.Options.Name != nil && *m.Options.Name == "orderId_unique" {
				if m.Options.Unique == nil || !*m.Options.Unique {
					t.Fatal("orderId index on payment_receipts must be unique")
				}
				return
			}
		}
	}
	t.Fatal("payment_receipts orderId_unique index not declared")
}
