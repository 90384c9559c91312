// Package campaign provides the domain types shared by the castlebot
// packages.
//
// This package contains type definitions only. All other internal packages
// import campaign; campaign imports nothing internal. This keeps the domain
// layer free of circular dependencies.
//
// Key design constraints:
//   - Amounts are int64 whole currency units, never floats. The unit
//     convention matches Aggregate.Currency.
//   - Donor.DonationID is the identifier assigned by the campaign source.
//     It is monotonically non-decreasing across fetches but not necessarily
//     contiguous, and it is the deduplication key for stored donors.
package campaign
