// Package retriever turns freshness updates into content: a Retriever
// subscribes to a key and fetches every newer edition it hears about.
package retriever
