// Package pagination walks a page-numbered API endpoint one page at a time.
//
// The API reports the number of pages in a body field (total_pages by
// default) and takes the page number as a query parameter (page by default).
// Pages are requested strictly in order with one request in flight. The walk
// ends when the cursor passes the declared total, when a page yields no
// records, when the optional MaxPages bound is reached, or on the first
// failed request.
//
// An empty page ends the walk even if the declared total says more pages
// exist. Data after an empty page is never fetched.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(apiClient, pagination.DefaultConfig())
//	for page, err := range fetcher.Pages(ctx, "/invoices", 1) {
//		if err != nil {
//			return err
//		}
//		process(page.Body)
//	}
package pagination
