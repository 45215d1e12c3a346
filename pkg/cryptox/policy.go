package cryptox

import "unicode"

// MinPasswordLength is the shortest password the policy accepts.
const MinPasswordLength = 6

// CheckPasswordPolicy returns one message per rule the password breaks, or
// nil when it is acceptable.
func CheckPasswordPolicy(password string) []string {
	var digit, lower, upper, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}

	var problems []string
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, "Passwords must be at least 6 characters.")
	}
	if !symbol {
		problems = append(problems, "Passwords must have at least one non alphanumeric character.")
	}
	if !digit {
		problems = append(problems, "Passwords must have at least one digit ('0'-'9').")
	}
	if !lower {
		problems = append(problems, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !upper {
		problems = append(problems, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return problems
}
