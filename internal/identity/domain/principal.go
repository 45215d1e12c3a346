package domain

// Token destinations a claim can be emitted to.
const (
	DestinationAccessToken   = "access_token"
	DestinationIdentityToken = "id_token"
)

// Claim types carried by a principal.
const (
	ClaimSubject     = "sub"
	ClaimName        = "name"
	ClaimEmail       = "email"
	ClaimRole        = "role"
	ClaimDisplayName = "display_name"
)

// Claim is one claim of a principal and the tokens it is emitted to.
type Claim struct {
	Type         string   `json:"type"`
	Value        string   `json:"value"`
	Destinations []string `json:"destinations"`
}

// Principal is the authenticated identity a token is minted from. It is
// serialized into authorization codes and refresh tokens so the token
// endpoint can re-materialize it without another user lookup.
type Principal struct {
	Claims []Claim  `json:"claims"`
	Scopes []string `json:"scopes"`
	AMR    []string `json:"amr,omitempty"`
	SID    string   `json:"sid,omitempty"`
}

// Subject returns the value of the sub claim.
func (p Principal) Subject() string {
	for _, c := range p.Claims {
		if c.Type == ClaimSubject {
			return c.Value
		}
	}
	return ""
}

// ValuesFor returns the values of claimType emitted to destination.
func (p Principal) ValuesFor(claimType, destination string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type != claimType {
			continue
		}
		for _, d := range c.Destinations {
			if d == destination {
				out = append(out, c.Value)
				break
			}
		}
	}
	return out
}

// FirstFor is ValuesFor for single valued claims.
func (p Principal) FirstFor(claimType, destination string) string {
	if v := p.ValuesFor(claimType, destination); len(v) > 0 {
		return v[0]
	}
	return ""
}
