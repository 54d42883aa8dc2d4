// game/words.go
package game

import "math/rand"

// WordPair 一个词与它给卧底看的提示
type WordPair struct {
	Word string
	Hint string
}

// GeneralPack is the built-in word pack. Civilians see the word, the
// imposter only sees the hint.
var GeneralPack = []WordPair{
	{Word: "Pizza", Hint: "Food"},
	{Word: "Beach", Hint: "Place"},
	{Word: "Guitar", Hint: "Instrument"},
	{Word: "Library", Hint: "Place"},
	{Word: "Penguin", Hint: "Animal"},
	{Word: "Volcano", Hint: "Nature"},
	{Word: "Submarine", Hint: "Vehicle"},
	{Word: "Campfire", Hint: "Outdoors"},
	{Word: "Telescope", Hint: "Object"},
	{Word: "Waterfall", Hint: "Nature"},
	{Word: "Carnival", Hint: "Event"},
	{Word: "Lighthouse", Hint: "Building"},
	{Word: "Avalanche", Hint: "Nature"},
	{Word: "Orchestra", Hint: "Music"},
	{Word: "Skyscraper", Hint: "Building"},
	{Word: "Honeymoon", Hint: "Event"},
	{Word: "Chess", Hint: "Game"},
	{Word: "Desert", Hint: "Place"},
	{Word: "Helicopter", Hint: "Vehicle"},
	{Word: "Aquarium", Hint: "Place"},
}

func pickWord(rng *rand.Rand, pack []WordPair) WordPair {
	return pack[rng.Intn(len(pack))]
}
