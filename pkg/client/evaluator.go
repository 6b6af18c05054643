package client

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	getRegex     = "^get\\s+([\\S\\s]+)$"
	putRegex     = "^put\\s+([\\S\\s]+)$"
	timeoutRegex = "^timeout\\s+(\\d+)$"
	blksizeRegex = "^blksize\\s+(\\d+)$"
	modeRegex    = "^mode\\s+(\\S+)$"
	connectRegex = "^connect\\s+([\\S\\s]+)\\s+([\\S\\s]+)$"
	traceRegex   = "^trace$"
	quitRegex    = "^quit$"
	helpRegex    = "^help$"
)

// Evaluator parses one REPL line at a time against a fixed set of
// commands, the same regex-dispatch shape as the teacher's original.
type Evaluator struct {
	l             *zap.SugaredLogger
	client        Connector
	line          string
	trace         bool
	regexPatterns map[string]*regexp.Regexp
}

func NewEvaluator(l *zap.SugaredLogger, client Connector) *Evaluator {
	e := &Evaluator{l: l, client: client}

	e.regexPatterns = map[string]*regexp.Regexp{
		"get":     regexp.MustCompile(getRegex),
		"put":     regexp.MustCompile(putRegex),
		"timeout": regexp.MustCompile(timeoutRegex),
		"blksize": regexp.MustCompile(blksizeRegex),
		"mode":    regexp.MustCompile(modeRegex),
		"connect": regexp.MustCompile(connectRegex),
		"trace":   regexp.MustCompile(traceRegex),
		"quit":    regexp.MustCompile(quitRegex),
		"help":    regexp.MustCompile(helpRegex),
	}

	return e
}

func (e *Evaluator) evaluate() (bool, error) {
	e.line = strings.TrimSuffix(e.line, "\n")

	if matches := e.regexPatterns["get"].FindStringSubmatch(e.line); len(matches) == 2 {
		return false, e.client.Get(matches[1])
	}

	if matches := e.regexPatterns["put"].FindStringSubmatch(e.line); len(matches) == 2 {
		return false, e.client.Put(matches[1])
	}

	if matches := e.regexPatterns["timeout"].FindStringSubmatch(e.line); len(matches) == 2 {
		n, err := strconv.ParseUint(matches[1], 10, 32)
		if err != nil {
			return false, fmt.Errorf("timeout value can not be parsed: %w", err)
		}

		e.client.SetTimeout(uint(n))

		return false, nil
	}

	if matches := e.regexPatterns["blksize"].FindStringSubmatch(e.line); len(matches) == 2 {
		n, err := strconv.ParseUint(matches[1], 10, 32)
		if err != nil {
			return false, fmt.Errorf("blksize value can not be parsed: %w", err)
		}

		e.client.SetBlksize(uint(n))

		return false, nil
	}

	if matches := e.regexPatterns["mode"].FindStringSubmatch(e.line); len(matches) == 2 {
		return false, e.client.SetMode(matches[1])
	}

	if matches := e.regexPatterns["connect"].FindStringSubmatch(e.line); len(matches) == 3 {
		return false, e.client.Connect(fmt.Sprintf("%s:%s", matches[1], matches[2]))
	}

	if matches := e.regexPatterns["trace"].FindStringSubmatch(e.line); len(matches) == 1 {
		e.trace = !e.trace
		e.client.SetTrace(e.trace)

		return false, nil
	}

	if matches := e.regexPatterns["help"].FindStringSubmatch(e.line); len(matches) == 1 {
		fmt.Println(`Commands:
	connect <host> <port>
	get <file>
	put <file>
	timeout <integer>
	blksize <integer>
	mode <octet|netascii>
	trace
	quit`)

		return false, nil
	}

	if matches := e.regexPatterns["quit"].FindStringSubmatch(e.line); len(matches) == 1 {
		return true, e.client.Close()
	}

	return false, fmt.Errorf("unknown command or arguments: %s", e.line)
}
