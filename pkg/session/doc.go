// Package session holds the server-side state of each open page.
//
// A Session owns the page's address bar (a urlparam.Location), its draft
// collection and the ingestion and save coordinators that act on it. The
// browser is a thin client: page-initiated URL changes, draft snapshots,
// listings pages and toasts reach it as Events, and it reports back
// navigation it performed itself.
//
// # Lifecycle
//
//	mgr := session.NewManager(session.Deps{
//	    Ingester: client,
//	    Saver:    client,
//	    Fetcher:  client,
//	}, session.DefaultManagerConfig())
//
//	sess, _ := mgr.Create("/listings/new", nil)
//	unsubscribe := sess.Subscribe(func(ev session.Event) { ... })
//	id, task := sess.Ingest().Ingest("https://jobs.example.com/42", "")
//
// Sessions untouched for IdleTimeout are closed by the manager.
//
// # Listings table
//
// ListingsTable derives fetchPage parameters from the query (q, sort,
// status, page) and refetches whenever they change. The search box is
// debounced before it reaches the URL. Only the newest fetch may land;
// older ones are dropped by generation.
package session
