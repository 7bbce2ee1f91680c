package cookiejar

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// netscapeHeader matches the comment line curl writes to (and reads from)
// a CURLOPT_COOKIEJAR/CURLOPT_COOKIEFILE file.
const netscapeHeader = "# Netscape HTTP Cookie File"

// LoadNetscapeFile loads cookies from a Netscape cookies.txt-format file
// into j. A missing file is non-fatal: it returns nil.
func LoadNetscapeFile(j *Jar, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cookiejar: opening cookie file: %w", err)
	}
	defer f.Close()

	j.mu.Lock()
	defer j.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}

		domain := strings.TrimPrefix(fields[0], ".")
		secure := strings.EqualFold(fields[3], "TRUE")
		path := fields[2]
		expires, _ := strconv.ParseInt(fields[4], 10, 64)
		name := fields[5]
		value := fields[6]

		j.upsert(&Cookie{
			Name:                name,
			Value:               value,
			Domain:              domain,
			Path:                path,
			ExpiresEpochSeconds: expires,
			Secure:              secure,
		})
	}
	return scanner.Err()
}

// SaveNetscapeFile flushes j's contents to path in Netscape cookies.txt
// format. Session cookies (ExpiresEpochSeconds == 0) are omitted, matching
// curl's own behavior of not persisting session-only cookies.
func SaveNetscapeFile(j *Jar, path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cookiejar: creating cookie file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, netscapeHeader)

	for domain, byPath := range j.domains {
		for path, bucket := range byPath {
			for _, c := range bucket {
				if c.ExpiresEpochSeconds == 0 {
					continue
				}
				includeSubdomains := "FALSE"
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					domain, includeSubdomains, path, boolField(c.Secure),
					c.ExpiresEpochSeconds, c.Name, c.Value)
			}
		}
	}
	return w.Flush()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
