// Package stream implements the long-running band exchanges: realtime
// sensor sampling, activity history retrieval and chunked transfers.
//
// Every loop is cooperative. One iteration performs a single bounded
// transport wait, drains the router queues it owns and checks for
// cancellation before the next wait.
package stream
