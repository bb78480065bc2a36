// Package retry provides bounded, classified retries with configurable
// backoff for calls against the Drive API.
//
// Errors are sorted into categories (network, auth, rate limit, server,
// client, unknown); only transient categories are retried. Delay between
// attempts follows one of four strategies (fixed, exponential, linear,
// random), honors server-suggested Retry-After hints, and can be jittered
// to avoid synchronized retry storms.
//
// # Example Usage
//
//	engine := retry.New(retry.DefaultPolicy())
//
//	out := engine.Execute(ctx, func(ctx context.Context) (any, error) {
//	    return client.ListChildren(ctx, query)
//	})
//	if !out.OK {
//	    return out.Err
//	}
//
// The engine never hides a final failure: the last observed error is always
// carried in the Outcome. Waits respect context cancellation.
package retry
