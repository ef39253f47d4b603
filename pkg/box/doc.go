// Package box is a client for the Box content API.
//
// A Client is built from client credentials (or a developer token) and exposes
// one manager per family of endpoints: Folders, Files, UploadSessions, Events,
// Search, Metadata and Users. Most manager methods are a single request, but a
// few return longer lived helpers:
//
//   - list endpoints return an *Iterator, which pages through offset or marker
//     based collections lazily;
//   - Events.Stream and Events.EnterpriseStream return streams that keep polling
//     the API and deliver events on a channel;
//   - Files.NewChunkedUploader drives an upload session: parts are uploaded in
//     parallel and committed once the whole file is covered.
//
// Every request goes through Client.Do, which retries rate limited and server
// errors with randomized exponential backoff (see RetryDelay).
package box
