// Package fakedata generates realistic field values for auto-registration
// and generated form-submission tests. Structure is deterministic, values are
// randomized; a Generator seeded explicitly is fully reproducible.
package fakedata

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Symbols is the symbol alphabet password generation draws from.
const Symbols = "!@#$%^&*"

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
	"Linda", "David", "Elizabeth", "William", "Barbara", "Richard", "Susan",
	"Joseph", "Jessica", "Thomas", "Sarah", "Christopher", "Karen",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
}

var emailDomains = []string{"example.com", "testmail.org", "mailinator.com", "fakeinbox.net"}

var streetNames = []string{
	"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Park Blvd", "Elm St",
	"Washington Ave", "Lake Rd", "Hill St", "River Dr",
}

var cities = []string{
	"Springfield", "Riverside", "Franklin", "Greenville", "Bristol",
	"Clinton", "Fairview", "Salem", "Madison", "Georgetown",
}

var companySuffixes = []string{"Inc", "LLC", "Group", "Labs", "Systems", "Solutions"}

var companyRoots = []string{
	"Acme", "Globex", "Initech", "Umbrella", "Vertex", "Pinnacle",
	"Quantum", "Apex", "Nimbus", "Zenith",
}

// Generator produces fake values. Not safe for concurrent use; give each
// goroutine its own.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator seeded from the clock.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator for tests.
func NewSeeded(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

func (g *Generator) FirstName() string { return g.pick(firstNames) }
func (g *Generator) LastName() string  { return g.pick(lastNames) }

func (g *Generator) FullName() string {
	return g.FirstName() + " " + g.LastName()
}

func (g *Generator) Username() string {
	return fmt.Sprintf("%s%s%d",
		strings.ToLower(g.FirstName()),
		strings.ToLower(g.LastName()),
		g.rng.Intn(1000))
}

func (g *Generator) Email() string {
	return fmt.Sprintf("%s.%s%d@%s",
		strings.ToLower(g.FirstName()),
		strings.ToLower(g.LastName()),
		g.rng.Intn(10000),
		g.pick(emailDomains))
}

// Password returns a password of exactly the requested length containing at
// least one uppercase letter, one lowercase letter, one digit and one symbol.
// Lengths below 4 are raised to 4, the minimum that can satisfy all four
// classes.
func (g *Generator) Password(length int) string {
	if length < 4 {
		length = 4
	}
	chars := make([]byte, 0, length)
	chars = append(chars,
		upperChars[g.rng.Intn(len(upperChars))],
		lowerChars[g.rng.Intn(len(lowerChars))],
		digitChars[g.rng.Intn(len(digitChars))],
		Symbols[g.rng.Intn(len(Symbols))],
	)
	all := upperChars + lowerChars + digitChars + Symbols
	for len(chars) < length {
		chars = append(chars, all[g.rng.Intn(len(all))])
	}
	g.rng.Shuffle(len(chars), func(i, j int) {
		chars[i], chars[j] = chars[j], chars[i]
	})
	return string(chars)
}

func (g *Generator) Phone() string {
	return fmt.Sprintf("+1-%d%d%d-%d%d%d-%d%d%d%d",
		2+g.rng.Intn(8), g.rng.Intn(10), g.rng.Intn(10),
		2+g.rng.Intn(8), g.rng.Intn(10), g.rng.Intn(10),
		g.rng.Intn(10), g.rng.Intn(10), g.rng.Intn(10), g.rng.Intn(10))
}

func (g *Generator) StreetAddress() string {
	return fmt.Sprintf("%d %s", 1+g.rng.Intn(9999), g.pick(streetNames))
}

func (g *Generator) City() string { return g.pick(cities) }

func (g *Generator) ZipCode() string {
	return fmt.Sprintf("%05d", g.rng.Intn(100000))
}

func (g *Generator) Company() string {
	return g.pick(companyRoots) + " " + g.pick(companySuffixes)
}

// BirthDate returns a date placing the subject between minAge and maxAge
// years old, formatted as YYYY-MM-DD.
func (g *Generator) BirthDate(minAge, maxAge int) string {
	if minAge <= 0 {
		minAge = 18
	}
	if maxAge < minAge {
		maxAge = minAge + 50
	}
	now := time.Now()
	years := minAge + g.rng.Intn(maxAge-minAge+1)
	d := now.AddDate(-years, 0, -g.rng.Intn(365))
	return d.Format("2006-01-02")
}

func (g *Generator) Age(minAge, maxAge int) int {
	if minAge <= 0 {
		minAge = 18
	}
	if maxAge < minAge {
		maxAge = minAge + 50
	}
	return minAge + g.rng.Intn(maxAge-minAge+1)
}

// fieldRule maps field-name substrings to a value producer. Rules are matched
// in order; the first hit wins, so more specific substrings come first.
type fieldRule struct {
	substrings []string
	generate   func(g *Generator) string
}

var fieldRules = []fieldRule{
	{[]string{"email", "e-mail"}, func(g *Generator) string { return g.Email() }},
	{[]string{"password", "passwd", "pwd"}, func(g *Generator) string { return g.Password(12) }},
	{[]string{"username", "user_name", "login"}, func(g *Generator) string { return g.Username() }},
	{[]string{"firstname", "first_name", "first-name", "fname"}, func(g *Generator) string { return g.FirstName() }},
	{[]string{"lastname", "last_name", "last-name", "lname", "surname"}, func(g *Generator) string { return g.LastName() }},
	{[]string{"fullname", "full_name", "name"}, func(g *Generator) string { return g.FullName() }},
	{[]string{"phone", "mobile", "tel"}, func(g *Generator) string { return g.Phone() }},
	{[]string{"address", "street"}, func(g *Generator) string { return g.StreetAddress() }},
	{[]string{"city", "town"}, func(g *Generator) string { return g.City() }},
	{[]string{"zip", "postal"}, func(g *Generator) string { return g.ZipCode() }},
	{[]string{"birth", "dob", "date"}, func(g *Generator) string { return g.BirthDate(18, 80) }},
	{[]string{"company", "organization", "organisation"}, func(g *Generator) string { return g.Company() }},
	{[]string{"age"}, func(g *Generator) string { return fmt.Sprintf("%d", g.Age(18, 80)) }},
}

// AutoFill infers a realistic value for a form field from its name,
// placeholder and input type, in that priority order. Unrecognized fields get
// generic placeholder text.
func (g *Generator) AutoFill(fieldName, placeholder, inputType string) string {
	for _, hint := range []string{fieldName, placeholder, inputType} {
		if hint == "" {
			continue
		}
		lower := strings.ToLower(hint)
		for _, rule := range fieldRules {
			for _, sub := range rule.substrings {
				if strings.Contains(lower, sub) {
					return rule.generate(g)
				}
			}
		}
	}
	if placeholder != "" {
		return "Test " + placeholder
	}
	return fmt.Sprintf("Test value %d", g.rng.Intn(10000))
}
