// Package models defines the core domain models for SplitIt.
//
// # Models
//
//   - Member: a person splitting the bill, identified by an opaque session-unique ID
//   - Item: a priced receipt line shared by zero or more members
//   - Receipt: the normalised output of receipt extraction
//   - MemberSummary: one member's computed share of the bill (never stored)
//   - Settlement: a simulated payment link issued for a MemberSummary
//
// # Money
//
// All amounts are decimal.Decimal values in major currency units (e.g. dollars).
// Amounts coming from extraction are rounded to whole minor units (cents) before
// they enter a bill, so every value in these models is representable exactly.
//
// # Design Principles
//
//  1. Relationships use ID strings, not pointers (Item.AssignedTo holds member IDs)
//  2. Derived values (MemberSummary) are recomputed on demand and never authoritative
//  3. Models carry no behavior; the bill package owns mutation rules
package models
