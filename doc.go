// Package experiences is an SDK for server-authored experience
// documents.
//
// Package 'core' has the document model and its decoders, 'expr' the
// placeholder language, 'sio' live render sessions, and 'store' the
// document store.  The 'xp' command in `cmd` fetches, renders, and
// inspects documents.
package experiences
