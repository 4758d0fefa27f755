/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand/v2"
)

// wordPool supplies the typing text, shortest words first. Each match
// draws its challenge from the first --word-count entries.
var wordPool = []string{
	"or",
	"if",
	"in",
	"it",
	"on",
	"he",
	"as",
	"do",
	"at",
	"by",
	"we",
	"of",
	"an",
	"my",
	"so",
	"up",
	"to",
	"go",
	"me",
	"no",
	"be",
	"us",
	"the",
	"one",
	"all",
	"big",
	"let",
	"but",
	"his",
	"out",
	"and",
	"why",
	"who",
	"get",
	"for",
	"say",
	"can",
	"her",
	"him",
	"old",
	"see",
	"put",
	"now",
	"its",
	"she",
	"own",
	"use",
	"two",
	"how",
	"our",
	"way",
	"new",
	"any",
	"day",
	"you",
	"too",
	"not",
	"ask",
	"may",
	"try",
	"good",
	"some",
	"will",
	"them",
	"they",
	"that",
	"than",
	"then",
	"this",
	"look",
	"only",
	"come",
	"have",
	"keep",
	"same",
	"also",
	"back",
	"much",
	"over",
	"when",
	"make",
	"what",
	"work",
	"most",
	"well",
	"like",
	"even",
	"time",
	"want",
	"high",
	"with",
	"feel",
	"give",
	"just",
	"from",
	"very",
	"know",
	"take",
	"need",
	"mean",
	"life",
	"into",
	"down",
	"year",
	"last",
	"your",
	"call",
	"first",
	"world",
	"still",
	"would",
	"after",
	"child",
	"there",
	"woman",
	"these",
	"three",
	"state",
	"never",
	"great",
	"their",
	"about",
	"which",
	"while",
	"could",
	"other",
	"leave",
	"think",
	"family",
	"school",
	"should",
	"people",
	"really",
	"become",
	"another",
	"because",
	"between",
	"problem",
	"through",
	"student",
	"something",
}

// drawChallenge returns a fresh permutation of pool. The copy keeps
// challenges immutable per room; concurrent draws never share a buffer.
func drawChallenge(pool []string) []string {
	challenge := make([]string, len(pool))
	copy(challenge, pool)

	rand.Shuffle(len(challenge), func(i, j int) {
		challenge[i], challenge[j] = challenge[j], challenge[i]
	})

	return challenge
}
