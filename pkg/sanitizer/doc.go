// Package sanitizer provides input normalization for patient and booking data.
//
// All normalization functions are idempotent - applying them multiple times
// produces the same result. Functions handle invalid input gracefully,
// typically by returning empty strings or empty slices rather than errors.
//
// Normalization includes:
//   - Phone numbers: Convert to E.164 format (+[country][number])
//   - Names and notes: Collapse whitespace, trim leading/trailing spaces
//   - Emails: Trim and lowercase
//   - Weekday labels: Lowercase ("Monday" becomes "monday")
//   - Slices: Remove duplicates and empty values after normalization
package sanitizer
