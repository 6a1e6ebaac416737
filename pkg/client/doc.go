// Package client is the Go SDK for the produce escrow ledger.
//
// # Connecting
//
// Reads are public; every mutating call needs a caller token issued by the
// ledger operator (see 'ledgerctl token'):
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(os.Getenv("LEDGER_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Selling a batch
//
// Metadata documents live in the ledger's content store and batches refer to
// them by CID:
//
//	cid, _ := c.PutContent(ctx, harvestJSON)
//	id, _ := c.CreateBatch(ctx, cid, "1000000000000000000")
//	c.ListBatch(ctx, id, "1000000000000000000")
//
// # Buying a batch
//
// The buyer deposits exactly the listed price, the farmer marks delivery and
// the buyer releases the escrow:
//
//	c.FundEscrow(ctx, id, "1000000000000000000")
//	// ... farmer calls MarkDelivered ...
//	c.Release(ctx, id)
//
// # Errors
//
// Non-2xx responses are returned as *APIError carrying the HTTP status and
// the ledger's error code (for example "invalid_state" or "already_has_buyer"):
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == "already_has_buyer" {
//	    // someone else funded first
//	}
package client
