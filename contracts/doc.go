// Package contracts defines the event envelope and the saga event payloads
// shared by the booking, inventory and payment services.
package contracts
