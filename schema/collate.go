package schema

import (
	"context"
	"strings"

	"github.com/joe-ervin05/litetable/database"
)

// introspectCollations fills Column.Collate from the CREATE TABLE text kept
// in sqlite_master. No pragma reports the collation of an unindexed column.
func introspectCollations(ctx context.Context, db database.Executor, s *Schema) error {
	row, err := db.Get(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", s.Name)
	if err != nil || row == nil {
		return err
	}
	createSQL, _ := row["sql"].(string)

	colls := columnCollations(createSQL)
	for i := range s.Columns {
		for name, coll := range colls {
			if strings.EqualFold(name, s.Columns[i].Name) {
				s.Columns[i].Collate = coll
			}
		}
	}
	return nil
}

// columnCollations maps each column definition of a CREATE TABLE statement
// that carries a COLLATE clause to its collation name, upper-cased.
func columnCollations(createSQL string) map[string]string {
	out := make(map[string]string)
	for _, def := range columnDefinitions(sqlTokens(createSQL)) {
		if len(def) < 2 {
			continue
		}
		depth := 0
		for i, tok := range def {
			switch tok {
			case "(":
				depth++
			case ")":
				depth--
			}
			if depth == 0 && strings.EqualFold(tok, "COLLATE") && i+1 < len(def) {
				out[unquoteIdent(def[0])] = strings.ToUpper(unquoteIdent(def[i+1]))
				break
			}
		}
	}
	return out
}

// columnDefinitions splits the tokens between the outer parentheses of a
// CREATE TABLE statement at top-level commas.
func columnDefinitions(tokens []string) [][]string {
	var defs [][]string
	var cur []string
	depth := 0
	for _, tok := range tokens {
		switch {
		case tok == "(":
			depth++
			if depth == 1 {
				continue
			}
		case tok == ")":
			depth--
			if depth == 0 {
				return append(defs, cur)
			}
		case tok == "," && depth == 1:
			defs = append(defs, cur)
			cur = nil
			continue
		}
		if depth >= 1 {
			cur = append(cur, tok)
		}
	}
	return defs
}

// sqlTokens splits SQL text into words, quoted strings or identifiers, and
// the punctuation "(", ")" and ",". Comments are dropped.
func sqlTokens(text string) []string {
	var tokens []string
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && strings.HasPrefix(text[i:], "--"):
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				return tokens
			}
			i += end + 1
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, string(c))
			i++
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			j := i + 1
			for j < len(text) {
				if text[j] == closer {
					// A doubled quote is an escaped quote.
					if closer != ']' && j+1 < len(text) && text[j+1] == closer {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := min(j+1, len(text))
			tokens = append(tokens, text[i:end])
			i = end
		default:
			j := i
			for j < len(text) && !strings.ContainsRune(" \t\n\r(),'\"`[", rune(text[j])) {
				j++
			}
			tokens = append(tokens, text[i:j])
			i = j
		}
	}
	return tokens
}

func unquoteIdent(tok string) string {
	if len(tok) < 2 {
		return tok
	}
	switch first, last := tok[0], tok[len(tok)-1]; {
	case first == '[' && last == ']':
		return tok[1 : len(tok)-1]
	case (first == '"' || first == '`' || first == '\'') && last == first:
		q := string(first)
		return strings.ReplaceAll(tok[1:len(tok)-1], q+q, q)
	}
	return tok
}
