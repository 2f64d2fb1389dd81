// Package models contains the GORM persistence models of the settlement ledger.
// Domain entities stay free of table mappings; repositories convert between the
// two with ToDomain and the *ModelFromDomain constructors.
//
//   - base.go: identity, timestamps and the optimistic version column
//   - payroll.go: payments, debts, workers and the two history tables
package models
