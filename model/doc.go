// Package model defines the data model shared by the write and read paths and
// the stable boundary types for API layers.
//
// Handles are content-addressed (see CanonicalBody); ledger order is
// authoritative for every list in this package.
package model
