package tradeledger

import (
	"fmt"
	"strings"
	"unicode"
)

// LedgerTable is the name of the ledger table.
const LedgerTable = "portfolio_event_ledger"

// keywords that never appear in a plain read of the ledger.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true, "RENAME": true, "COMMENT": true,
	"GRANT": true, "REVOKE": true, "COPY": true, "CALL": true, "DO": true, "EXECUTE": true, "EXEC": true,
	"PREPARE": true, "DEALLOCATE": true, "DECLARE": true, "LOCK": true, "VACUUM": true, "ANALYZE": true,
	"REINDEX": true, "CLUSTER": true, "REFRESH": true, "SET": true, "RESET": true, "LISTEN": true,
	"NOTIFY": true, "INTO": true, "ATTACH": true, "DETACH": true, "PRAGMA": true, "BEGIN": true,
	"COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true, "LOAD": true,
	"TABLE": true,
}

// identifier prefixes of functions and catalogs reaching outside the ledger table.
var forbiddenPrefixes = []string{"pg_", "lo_", "dblink", "sqlite_", "information_schema"}

// functions that may be called: plain scalar, aggregate and window functions,
// plus the type names used in casts.
var allowedFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "total": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true, "variance": true,
	"string_agg": true, "group_concat": true, "array_agg": true, "bool_and": true, "bool_or": true,
	"coalesce": true, "nullif": true, "ifnull": true, "iif": true, "greatest": true, "least": true,
	"abs": true, "round": true, "trunc": true, "ceil": true, "ceiling": true, "floor": true,
	"sign": true, "mod": true, "power": true, "sqrt": true,
	"extract": true, "date_trunc": true, "date_part": true, "date": true, "datetime": true,
	"strftime": true, "julianday": true, "to_char": true, "cast": true,
	"upper": true, "lower": true, "replace": true, "trim": true, "ltrim": true, "rtrim": true,
	"length": true, "substr": true, "substring": true, "concat": true,
	"row_number": true, "rank": true, "dense_rank": true, "lag": true, "lead": true,
	"first_value": true, "last_value": true,
	"numeric": true, "decimal": true, "varchar": true, "char": true,
}

// keywords that may be followed by an opening parenthesis without being a
// function call.
var parenKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "JOIN": true, "ON": true, "USING": true, "WHERE": true,
	"AND": true, "OR": true, "NOT": true, "IN": true, "EXISTS": true, "ANY": true, "SOME": true,
	"ALL": true, "AS": true, "BY": true, "HAVING": true, "OVER": true, "FILTER": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "IS": true, "LIKE": true, "ILIKE": true,
	"BETWEEN": true, "DISTINCT": true, "UNION": true, "INTERSECT": true, "EXCEPT": true,
	"LIMIT": true, "OFFSET": true, "VALUES": true, "LATERAL": true, "ROW": true,
}

// keywords closing a FROM list at the same parenthesis depth.
var fromTerminators = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "LIMIT": true, "HAVING": true, "OFFSET": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "WINDOW": true, "FETCH": true, "FOR": true,
}

// keywords allowed between FROM/JOIN and the table name.
var tablePrefixes = map[string]bool{"ONLY": true, "LATERAL": true}

// CheckReadOnly accepts only a single SELECT statement whose tables are all
// the ledger table and whose function calls are all in allowedFunctions. It
// returns an *UnsupportedQueryError otherwise.
//
// The check works on tokens: string literals, quoted identifiers and comments
// cannot hide keywords or a statement separator.
func CheckReadOnly(sql string) error {
	toks, err := lexSQL(sql)
	if err != nil {
		return &UnsupportedQueryError{Reason: err.Error()}
	}
	for len(toks) > 0 && toks[len(toks)-1].is(";") {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return &UnsupportedQueryError{Reason: "empty statement"}
	}
	if !toks[0].isWord("SELECT") {
		return &UnsupportedQueryError{Reason: fmt.Sprintf("only SELECT statements are allowed, got %q", toks[0].text)}
	}

	// one scope per open parenthesis.
	type scope struct {
		selected    bool // a SELECT was seen in this scope
		inFrom      bool
		expectTable bool
	}
	scopes := []scope{{}}
	tables := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		s := &scopes[len(scopes)-1]
		if s.expectTable {
			switch {
			case t.kind == tokWord && tablePrefixes[t.upper()]:
				continue
			case t.is("("):
				// derived table, checked as its own scope.
				s.expectTable = false
			case t.kind == tokWord || t.kind == tokQuoted:
				name := t.ident()
				if i+2 < len(toks) && toks[i+1].is(".") {
					if schema := strings.ToLower(name); schema != "public" && schema != "main" {
						return &UnsupportedQueryError{Reason: fmt.Sprintf("schema %q is not allowed", name)}
					}
					i += 2
					name = toks[i].ident()
				}
				if name != LedgerTable {
					return &UnsupportedQueryError{Reason: fmt.Sprintf("only the %s table can be queried, got %q", LedgerTable, name)}
				}
				if i+1 < len(toks) && toks[i+1].is("(") {
					return &UnsupportedQueryError{Reason: "table functions are not allowed"}
				}
				s.expectTable = false
				tables++
				continue
			default:
				return &UnsupportedQueryError{Reason: fmt.Sprintf("unexpected %q after FROM", t.text)}
			}
		}
		switch {
		case t.is(";"):
			return &UnsupportedQueryError{Reason: "multiple statements are not allowed"}
		case t.is("("):
			scopes = append(scopes, scope{})
		case t.is(")"):
			if len(scopes) == 1 {
				return &UnsupportedQueryError{Reason: "unbalanced parenthesis"}
			}
			scopes = scopes[:len(scopes)-1]
		case t.is(","):
			if s.inFrom {
				s.expectTable = true
			}
		case t.kind == tokQuoted:
			if err := checkIdentifier(t.text); err != nil {
				return err
			}
			if i+1 < len(toks) && toks[i+1].is("(") && !allowedFunctions[t.text] {
				return &UnsupportedQueryError{Reason: fmt.Sprintf("function %s is not allowed", t.text)}
			}
		case t.kind == tokWord:
			word := t.upper()
			if forbiddenKeywords[word] {
				return &UnsupportedQueryError{Reason: fmt.Sprintf("keyword %s is not allowed", word)}
			}
			if err := checkIdentifier(t.text); err != nil {
				return err
			}
			if i+1 < len(toks) && toks[i+1].is("(") && !parenKeywords[word] && !allowedFunctions[t.ident()] {
				return &UnsupportedQueryError{Reason: fmt.Sprintf("function %s is not allowed", t.ident())}
			}
			switch {
			case word == "SELECT":
				s.selected, s.inFrom = true, false
			case word == "FROM" && s.selected:
				s.inFrom, s.expectTable = true, true
			case word == "JOIN" && s.inFrom:
				s.expectTable = true
			case fromTerminators[word]:
				s.inFrom = false
			}
		}
	}
	if len(scopes) != 1 {
		return &UnsupportedQueryError{Reason: "unbalanced parenthesis"}
	}
	if scopes[0].expectTable {
		return &UnsupportedQueryError{Reason: "missing table after FROM"}
	}
	if tables == 0 {
		return &UnsupportedQueryError{Reason: fmt.Sprintf("the statement must read from %s", LedgerTable)}
	}
	return nil
}

// checkIdentifier rejects catalogs and extensions reaching outside the ledger table.
func checkIdentifier(name string) error {
	lower := strings.ToLower(name)
	for _, p := range forbiddenPrefixes {
		if strings.HasPrefix(lower, p) {
			return &UnsupportedQueryError{Reason: fmt.Sprintf("%s is not allowed", lower)}
		}
	}
	return nil
}

type tokKind int

const (
	tokWord   tokKind = iota // keyword or unquoted identifier
	tokQuoted                // "quoted identifier"
	tokString                // 'literal'
	tokNumber
	tokParam // $1
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

func (t token) is(punct string) bool    { return t.kind == tokPunct && t.text == punct }
func (t token) isWord(word string) bool { return t.kind == tokWord && t.upper() == word }
func (t token) upper() string           { return strings.ToUpper(t.text) }

// ident returns the identifier name, unquoted identifiers fold to lower case.
func (t token) ident() string {
	if t.kind == tokQuoted {
		return t.text
	}
	return strings.ToLower(t.text)
}

// lexSQL splits sql into tokens, dropping blanks and comments.
func lexSQL(sql string) ([]token, error) {
	var toks []token
	r := []rune(sql)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '-' && i+1 < len(r) && r[i+1] == '-':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			j := i + 2
			for j+1 < len(r) && (r[j] != '*' || r[j+1] != '/') {
				j++
			}
			if j+1 >= len(r) {
				return nil, fmt.Errorf("unterminated comment")
			}
			i = j + 2
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			var b strings.Builder
			for {
				if j >= len(r) {
					return nil, fmt.Errorf("unterminated quote %c", c)
				}
				if r[j] == c {
					if j+1 < len(r) && r[j+1] == c { // doubled quote
						b.WriteRune(c)
						j += 2
						continue
					}
					break
				}
				b.WriteRune(r[j])
				j++
			}
			kind := tokQuoted
			if c == '\'' {
				kind = tokString
			}
			toks = append(toks, token{kind: kind, text: b.String()})
			i = j + 1
		case c == '$':
			j := i + 1
			for j < len(r) && unicode.IsDigit(r[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("dollar quoting is not supported")
			}
			toks = append(toks, token{kind: tokParam, text: string(r[i:j])})
			i = j
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(r) && unicode.IsDigit(r[i+1])):
			j := i
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.' || r[j] == 'e' || r[j] == 'E') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(r[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == '$') {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(r[i:j])})
			i = j
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks, nil
}
