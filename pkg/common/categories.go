package common

import "strings"

// EventCategories is the authoritative category taxonomy carried on event
// metadata. Markets without an event category fall back to ticker-prefix
// inference.
var EventCategories = []string{
	"COVID-19",
	"Climate and Weather",
	"Companies",
	"Crypto",
	"Economics",
	"Education",
	"Elections",
	"Entertainment",
	"Financials",
	"Health",
	"Mentions",
	"Politics",
	"Science and Technology",
	"Social",
	"Sports",
	"Transportation",
	"World",
}

const CategoryUnknown = "Unknown"

// Ordered longest-first so the most specific prefix wins.
var prefixCategories = []struct {
	prefix   string
	category string
}{
	{"KXMVESPORTS", "Sports"},
	{"KXMVENFL", "Sports"},
	{"KXMVENBA", "Sports"},
	{"KXMVENCAAMB", "Sports"},
	{"KXMVENHL", "Sports"},
	{"KXMVEUFC", "Sports"},
	{"KXMVEMENTIONS", "Mentions"},
	{"KXMVEMENT", "Entertainment"},
	{"KXNCAAMB", "Sports"},
	{"KXNCAAWB", "Sports"},
	{"KXNBAGAME", "Sports"},
	{"KXNBASPREAD", "Sports"},
	{"KXNBATOTAL", "Sports"},
	{"KXNHLGAME", "Sports"},
	{"KXUFCFIGHT", "Sports"},
	{"KXPGATOUR", "Sports"},
	{"KXATPCHALLEN", "Sports"},
	{"KXATPMATCH", "Sports"},
	{"KXWTAMATCH", "Sports"},
	{"KXEPLGAME", "Sports"},
	{"KXLALIGAGAME", "Sports"},
	{"KXBTC", "Crypto"},
	{"KXETH", "Crypto"},
	{"KXINX", "Financials"},
}

// InferCategory maps an event ticker prefix to a category, for markets whose
// event carries no category field.
func InferCategory(eventTicker string) string {
	for _, pc := range prefixCategories {
		if strings.HasPrefix(eventTicker, pc.prefix) {
			return pc.category
		}
	}
	return CategoryUnknown
}
