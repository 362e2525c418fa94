// Package rooms names the broadcast rooms observers can be members of.
package rooms

import "fleetdispatch/pkg/models"

// All is the implicit room every connection belongs to.
const All = "all"

func Bus(vehicleID string) string     { return "bus:" + vehicleID }
func User(userID string) string       { return "user:" + userID }
func Company(companyID string) string { return "company:" + companyID }
func Site(siteID string) string       { return "site:" + siteID }
func Trip(tripID string) string       { return "trip:" + tripID }
func Role(role models.Role) string    { return "role:" + string(role) }
