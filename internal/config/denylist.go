package config

// Seeded exclusion domains, grouped by why a link to them is not worth
// keeping in a catalog. Sign-in and account pages carry one-time tokens
// in their query strings; the rest are personal account areas.
var (
	signInHosts = []string{
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"appleid.apple.com",
		"auth0.com",
		"okta.com",
		"onelogin.com",
		"duo.com",
		"login.gov",
		"id.me",
	}

	credentialVaults = []string{
		"1password.com",
		"bitwarden.com",
		"lastpass.com",
		"dashlane.com",
		"keepersecurity.com",
	}

	banking = []string{
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"citi.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"navyfederal.org",
	}

	payments = []string{
		"paypal.com",
		"venmo.com",
		"checkout.stripe.com",
		"coinbase.com",
		"kraken.com",
	}

	patientPortals = []string{
		"mychart.com",
		"kp.org",
		"member.uhc.com",
		"member.aetna.com",
		"healthcare.gov",
	}

	govAccounts = []string{
		"irs.gov",
		"ssa.gov",
		"turbotax.intuit.com",
	}

	payroll = []string{
		"workday.com",
		"adp.com",
		"gusto.com",
	}
)

// DefaultDenylistDomains returns the patterns seeded as exclusion filters
// when a catalog is created. Each call returns a fresh slice.
func DefaultDenylistDomains() []string {
	groups := [][]string{signInHosts, credentialVaults, banking, payments, patientPortals, govAccounts, payroll}

	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
