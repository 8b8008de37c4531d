// Package poller implements the periodic-fetch fallback transport.
//
// When the socket is unavailable beyond the retry budget, the manager runs a
// poller instead: it requests pending updates on a fixed period and hands
// each event to the dispatch path in array order. A 401-class response
// triggers a credential refresh rather than abandoning polling; a refresh
// failure stops the poller and is escalated to the manager.
package poller
