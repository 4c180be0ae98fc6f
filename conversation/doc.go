// Package conversation implements the conversation aggregate: identity,
// lifecycle flags and the durable field store holding memory, messages and
// the uploaded-document index. A record owns exactly one field store scoped
// to its storage directory; nothing else may mutate that directory without
// acquiring the matching keyed lock.
package conversation
