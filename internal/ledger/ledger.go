package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"walletscope/internal/model"
)

// Header is the first line of every ledger file. It is never treated
// as data.
const Header = "block_number,tx_hash,from,to,value,gas_used,gas_price,timestamp,status"

const fieldCount = 9

// ErrEmpty is returned when the ledger exists but holds no lines at all.
var ErrEmpty = errors.New("ledger is empty")

// Writer appends normalized transactions to the ledger file. The ledger
// is append-only: records are never rewritten or deleted.
type Writer struct {
	path string
	mu   sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the ledger file path.
func (w *Writer) Path() string {
	return w.path
}

// EnsureInitialized creates the ledger with its header when absent.
func (w *Writer) EnsureInitialized() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stat, err := os.Stat(w.path)
	if err == nil && stat.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stat ledger: %w", err)
	}

	dir := filepath.Dir(w.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	if err := os.WriteFile(w.path, []byte(Header+"\n"), 0o644); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	return nil
}

// Append adds a batch of records at the end of the ledger.
func (w *Writer) Append(txs []model.NormalizedTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	if err := w.EnsureInitialized(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("invalid ledger record: %w", err)
		}
		if _, err := writer.WriteString(formatRow(tx)); err != nil {
			return fmt.Errorf("write ledger record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

func formatRow(tx model.NormalizedTransaction) string {
	fields := []string{
		strconv.FormatUint(tx.BlockNumber, 10),
		tx.TxHash,
		tx.From,
		tx.To,
		tx.Value.String(),
		strconv.FormatUint(tx.GasUsed, 10),
		strconv.FormatUint(tx.GasPrice, 10),
		strconv.FormatUint(tx.Timestamp, 10),
		tx.Status,
	}
	return strings.Join(fields, ",")
}

// Row is one physical ledger line handed to the reader callback. When
// Err is set the line was malformed and Tx is not meaningful.
type Row struct {
	Line int
	Tx   model.NormalizedTransaction
	Err  error
}

// Reader streams the ledger sequentially. It is a read-only consumer;
// it never runs concurrently with the Writer.
type Reader struct {
	path string
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Each calls fn for every data line in order. Malformed lines are
// reported through Row.Err and do not stop the stream. A missing or
// empty ledger is an error. Returning a non-nil error from fn stops
// the stream and propagates the error.
func (r *Reader) Each(fn func(Row) error) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if line == 1 {
			// Header line, skip. Old files without a header still parse
			// because a data row never starts with "block_number".
			if strings.HasPrefix(text, "block_number") {
				continue
			}
		}

		tx, parseErr := parseRow(text)
		if err := fn(Row{Line: line, Tx: tx, Err: parseErr}); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	if line == 0 {
		return fmt.Errorf("ledger %s: %w", r.path, ErrEmpty)
	}
	return nil
}

func parseRow(text string) (model.NormalizedTransaction, error) {
	fields := strings.Split(text, ",")
	if len(fields) != fieldCount {
		return model.NormalizedTransaction{}, fmt.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}

	blockNumber, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return model.NormalizedTransaction{}, fmt.Errorf("block number: %w", err)
	}
	value, err := decimal.NewFromString(fields[4])
	if err != nil {
		return model.NormalizedTransaction{}, fmt.Errorf("value: %w", err)
	}
	gasUsed, err := strconv.ParseUint(fields[5], 10, 64)
	if err != nil {
		return model.NormalizedTransaction{}, fmt.Errorf("gas used: %w", err)
	}
	gasPrice, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return model.NormalizedTransaction{}, fmt.Errorf("gas price: %w", err)
	}
	timestamp, err := strconv.ParseUint(fields[7], 10, 64)
	if err != nil {
		return model.NormalizedTransaction{}, fmt.Errorf("timestamp: %w", err)
	}

	tx := model.NormalizedTransaction{
		BlockNumber: blockNumber,
		TxHash:      fields[1],
		From:        model.NormalizeAddress(fields[2]),
		To:          model.NormalizeAddress(fields[3]),
		Value:       value,
		GasUsed:     gasUsed,
		GasPrice:    gasPrice,
		Timestamp:   timestamp,
		Status:      fields[8],
	}
	if err := tx.Validate(); err != nil {
		return model.NormalizedTransaction{}, err
	}
	return tx, nil
}
