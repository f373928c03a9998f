// Package validate gates what gets persisted.
//
// A Validator is a registry of independent checks. Validate runs every
// registered check against a candidate value and reports one Verdict per
// check; the value is admissible only when every check passes. A failing
// or panicking check never stops the remaining checks from running, and a
// validation failure is data, never an error.
//
// Typical use by an ingestion stage:
//
//	v := validate.New(validate.Ticker(), validate.Required("date", "close"))
//	verdicts := v.Validate(value)
//	if !verdicts.Admissible() {
//	    log.Printf("rejected: %s", strings.Join(verdicts.Reasons(), "; "))
//	}
package validate
