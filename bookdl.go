// Package bookdl provides a bulk ebook downloader for file-sharing hosts
// that gate direct download links behind JavaScript-driven pages. It drives
// a real browser session to acquire short-lived CDN links, hands them to an
// independently sized pool of transfer workers, and persists per-item state
// so interrupted runs can resume without re-fetching completed items.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, rod/, proxy/).
package bookdl
