// Package builtin ships the stock negotiator components: accept-all,
// max-agreements, limit-expiration and price-cap. They are statically linked
// and register into a component registry through Register.
package builtin
