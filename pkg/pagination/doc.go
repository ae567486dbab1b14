// Package pagination retrieves every page of a RePORTER search and assembles the
// records into one table.
//
// The endpoint paginates by offset. A retrieval first asks for the total record
// count, derives how many pages that needs, then walks the offsets in order:
//
//	retriever := pagination.NewRetriever(searchClient, pagination.DefaultConfig())
//	result, err := retriever.FetchAll(ctx, crit)
//	fmt.Println(result.Table.Len(), result.Status)
//
// The retriever:
//   - Fetches the total once, before the first page
//   - Issues ceil(total/pageSize)+1 page requests at most; the extra request is
//     an over-iteration guard that normally returns an empty page
//   - Stops on the first empty page (StopEmpty) or the first response with a
//     single top-level key (StopMalformed)
//   - Fetches strictly sequentially and never retries
//   - Returns no partial result when any request fails
package pagination
