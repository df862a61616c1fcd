// Package presence implements the real-time presence and messaging core of
// GoChat: the session registry, the bounded public message log, the typing
// tracker, the pairwise private room manager and the event dispatcher that
// owns all four.
//
// The dispatcher is a single-owner loop. Every inbound event from every
// connection is executed on that loop one at a time, so the data components
// are not safe for concurrent use on their own and are never shared outside
// of it. Outbound traffic leaves the loop through the Publisher port and is
// never awaited by the mutation path.
package presence
