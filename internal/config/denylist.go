package config

// DefaultDenylistDomains returns domains whose visits are never written to
// history: banking, password managers, identity providers, health portals
// and similar sensitive services. Subdomains match too.
func DefaultDenylistDomains() []string {
	return []string{
		// Banking & payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"citi.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"paypal.com",
		"venmo.com",
		"navyfederal.org",

		// Password managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",
		"dashlane.com",
		"keepersecurity.com",

		// Identity
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"okta.com",
		"login.gov",
		"id.me",

		// Health
		"mychart.com",
		"kp.org",
		"healthcare.gov",

		// Tax & government
		"irs.gov",
		"ssa.gov",

		// Crypto
		"coinbase.com",
		"kraken.com",
	}
}

// DefaultDenylistRegex returns patterns matched against the host.
func DefaultDenylistRegex() []string {
	return []string{
		`(^|\.)bank[a-z0-9-]*\.`,
		`^(login|signin|auth|sso)\.`,
	}
}

// Domains returns the configured domains, plus the defaults when
// enabled.
func (c CaptureConfig) Domains() []string {
	var out []string
	if c.UseDefaultDenylist {
		out = append(out, DefaultDenylistDomains()...)
	}
	return append(out, c.DenylistDomains...)
}

// Patterns returns the configured host patterns, plus the defaults when
// enabled.
func (c CaptureConfig) Patterns() []string {
	var out []string
	if c.UseDefaultDenylist {
		out = append(out, DefaultDenylistRegex()...)
	}
	return append(out, c.DenylistRegex...)
}
