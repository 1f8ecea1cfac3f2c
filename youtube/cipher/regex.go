package cipher

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// regexStep is one parsed transform: reverse, splice or swap.
type regexStep struct {
	op  string // rev, spl, swp
	arg int
}

var (
	regexParseMu    sync.Mutex
	regexParseCache = make(map[string][]regexStep)

	decipherFnRe = regexp.MustCompile(`function\s*[a-zA-Z0-9$]*\s*\(\s*([a-zA-Z0-9$]+)\s*\)\s*\{([\s\S]*?)\}`)
	transformRe  = regexp.MustCompile(`([a-zA-Z0-9$]+)\s*:\s*function\(a(?:,b)?\)\s*\{([\s\S]*?)\}`)
)

func cacheKeyForJS(playerJS string) string {
	h := sha1.Sum([]byte(playerJS))
	return hex.EncodeToString(h[:])
}

// tryRegexDecipher parses the script's transform chain and applies it to the
// signature without executing any script. It reports false when the chain
// cannot be recognized, leaving the VM path to handle it.
func tryRegexDecipher(playerJS, signature string) (string, bool) {
	key := cacheKeyForJS(playerJS)

	regexParseMu.Lock()
	steps, ok := regexParseCache[key]
	regexParseMu.Unlock()

	if !ok {
		steps = parseTransformChain(playerJS)
		regexParseMu.Lock()
		regexParseCache[key] = steps
		regexParseMu.Unlock()
	}

	if len(steps) == 0 {
		return "", false
	}

	r := []rune(signature)
	for _, st := range steps {
		switch st.op {
		case "rev":
			r = regexReverse(r)
		case "spl":
			r = regexSplice(r, st.arg)
		case "swp":
			r = regexSwap(r, st.arg)
		}
	}
	return string(r), true
}

// parseTransformChain locates the split/join decipher function, resolves the
// transform object it calls into named operations, and returns the call
// sequence as steps.
func parseTransformChain(playerJS string) []regexStep {
	var param, body string
	for _, m := range decipherFnRe.FindAllStringSubmatch(playerJS, -1) {
		p, b := m[1], m[2]
		if strings.Contains(b, p+`.split("")`) && strings.Contains(b, `return `+p+`.join("")`) {
			param, body = p, b
			break
		}
	}
	if param == "" {
		return nil
	}

	objNameRe := regexp.MustCompile(`([a-zA-Z0-9$]+)\.[a-zA-Z0-9$]+\(` + regexp.QuoteMeta(param) + `(?:,\s*\d+)?\)`)
	om := objNameRe.FindStringSubmatch(body)
	if len(om) < 2 {
		return nil
	}
	obj := om[1]

	// The non-greedy capture must stop at the object's closing brace, not at
	// the first inner function's; the statement-terminating semicolon is the
	// only reliable anchor in minified scripts.
	objRe := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(obj) + `\s*=\s*\{([\s\S]*?)\}\s*;`)
	om2 := objRe.FindStringSubmatch(playerJS)
	if len(om2) < 2 {
		return nil
	}

	nameToOp := make(map[string]string)
	for _, fm := range transformRe.FindAllStringSubmatch(om2[1], -1) {
		fbody := fm[2]
		switch {
		case strings.Contains(fbody, ".reverse()"):
			nameToOp[fm[1]] = "rev"
		case strings.Contains(fbody, ".splice("):
			nameToOp[fm[1]] = "spl"
		case strings.Contains(fbody, "a[0]=a[") && strings.Contains(fbody, "%a.length]"):
			nameToOp[fm[1]] = "swp"
		}
	}
	if len(nameToOp) == 0 {
		return nil
	}

	callRe := regexp.MustCompile(regexp.QuoteMeta(obj) + `\.([a-zA-Z0-9$]+)\(` + regexp.QuoteMeta(param) + `(?:,\s*(\d+))?\)`)
	var steps []regexStep
	for _, c := range callRe.FindAllStringSubmatch(body, -1) {
		op, ok := nameToOp[c[1]]
		if !ok {
			continue
		}
		arg := 0
		if c[2] != "" {
			if v, err := strconv.Atoi(c[2]); err == nil {
				arg = v
			}
		}
		steps = append(steps, regexStep{op: op, arg: arg})
	}
	return steps
}

func regexReverse(s []rune) []rune {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

func regexSplice(s []rune, n int) []rune {
	if n < 0 || n > len(s) {
		return s
	}
	return s[n:]
}

func regexSwap(s []rune, n int) []rune {
	if len(s) <= 1 {
		return s
	}
	n %= len(s)
	if n < 0 {
		n += len(s)
	}
	s[0], s[n] = s[n], s[0]
	return s
}
