package genotype

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// String renders one rule per line as "<state> <observation> -> <direction>
// <next>", grouped by state with a blank line between groups.
func (p Program) String() string {
	var b strings.Builder
	prevState := -1
	for _, entry := range p.Rules() {
		if prevState >= 0 && entry.State != prevState {
			b.WriteByte('\n')
		}
		prevState = entry.State
		fmt.Fprintf(&b, "%d %s -> %s %d\n", entry.State, entry.Observation, entry.Direction, entry.Next)
	}
	return b.String()
}

// ParseProgram reads the format produced by Program.String. The state count
// is one more than the largest state mentioned.
func ParseProgram(text string) (Program, error) {
	table := make(map[Key]Rule)
	maxState := -1

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 || fields[2] != "->" {
			return Program{}, fmt.Errorf("line %d: expected \"<state> <observation> -> <direction> <next>\", got %q", lineNo, line)
		}
		state, err := strconv.Atoi(fields[0])
		if err != nil || state < 0 {
			return Program{}, fmt.Errorf("line %d: invalid state %q", lineNo, fields[0])
		}
		obs, err := ParseObservation(fields[1])
		if err != nil {
			return Program{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		direction, err := ParseDirection(fields[3])
		if err != nil {
			return Program{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		next, err := strconv.Atoi(fields[4])
		if err != nil || next < 0 {
			return Program{}, fmt.Errorf("line %d: invalid next state %q", lineNo, fields[4])
		}

		key := Key{State: state, Observation: obs}
		if _, dup := table[key]; dup {
			return Program{}, fmt.Errorf("line %d: duplicate rule for state=%d observation=%s", lineNo, state, obs)
		}
		table[key] = Rule{Direction: direction, Next: next}
		if state > maxState {
			maxState = state
		}
	}
	if err := scanner.Err(); err != nil {
		return Program{}, err
	}
	if maxState < 0 {
		return Program{}, fmt.Errorf("program text has no rules")
	}
	return NewProgram(maxState+1, table)
}
