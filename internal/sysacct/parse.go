package sysacct

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PasswdEntry is one /etc/passwd line.
type PasswdEntry struct {
	Name  string
	UID   int
	GID   int
	Home  string
	Shell string
}

// GroupEntry is one /etc/group line.
type GroupEntry struct {
	Name    string
	GID     int
	Members []string
}

// LoadPasswd parses the passwd database. Blank, comment, and short lines are
// skipped; a malformed numeric field is an error because every downstream
// decision (protected floors, key file ownership) depends on it.
func LoadPasswd(path string) ([]PasswdEntry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var entries []PasswdEntry
	for _, line := range lines {
		parts := strings.Split(line, ":")
		if len(parts) < 7 {
			continue
		}
		uid, err := atoi(parts[2], "passwd.uid")
		if err != nil {
			return nil, err
		}
		gid, err := atoi(parts[3], "passwd.gid")
		if err != nil {
			return nil, err
		}
		entries = append(entries, PasswdEntry{
			Name:  parts[0],
			UID:   uid,
			GID:   gid,
			Home:  parts[5],
			Shell: parts[6],
		})
	}
	return entries, nil
}

// LoadGroup parses the group database.
func LoadGroup(path string) ([]GroupEntry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var entries []GroupEntry
	for _, line := range lines {
		parts := strings.Split(line, ":")
		if len(parts) < 4 {
			continue
		}
		gid, err := atoi(parts[2], "group.gid")
		if err != nil {
			return nil, err
		}
		var members []string
		if parts[3] != "" {
			members = strings.Split(parts[3], ",")
		}
		entries = append(entries, GroupEntry{Name: parts[0], GID: gid, Members: members})
	}
	return entries, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	var lines []string
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func atoi(field, ctx string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid int %q in %s: %w", field, ctx, err)
	}
	return n, nil
}
