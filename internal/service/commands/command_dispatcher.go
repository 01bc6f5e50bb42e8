package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	dateFormat     = "2006-01-02"
	maxListedItems = 15
)

// HelpText lists the supported chat commands.
const HelpText = "Pharmacy commands:\n" +
	"/lowstock - medicines running low\n" +
	"/expiring [days] - medicines expiring soon\n" +
	"/stock <name> - stock level of a medicine\n" +
	"/patient <id|contact> - patient summary\n" +
	"/help - this message"

// InventoryReader is the inventory surface the chat commands need.
type InventoryReader interface {
	List(ctx context.Context, search, category string) ([]models.Medicine, error)
	LowStock(ctx context.Context) ([]models.Medicine, error)
	Expiring(ctx context.Context, days int) ([]models.Medicine, error)
	Policy() models.StockPolicy
}

// PatientReader is the patient surface the chat commands need.
type PatientReader interface {
	Lookup(ctx context.Context, query string) (*models.Patient, error)
}

// Dispatcher executes parsed commands and builds the reply text.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	inventory InventoryReader
	patients  PatientReader
	logger    *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(inventory InventoryReader, patients PatientReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		inventory: inventory,
		patients:  patients,
		logger:    logger,
	}
}

// HandleCommand answers a read-only inventory or patient query.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandLowStock:
		return s.lowStock(ctx)
	case models.CommandExpiring:
		return s.expiring(ctx, cmd)
	case models.CommandStock:
		return s.stock(ctx, cmd)
	case models.CommandPatient:
		return s.patient(ctx, cmd)
	case models.CommandHelp:
		return HelpText, nil
	default:
		return "", ErrUnsupportedCommand
	}
}

func (s *Service) lowStock(ctx context.Context) (string, error) {
	medicines, err := s.inventory.LowStock(ctx)
	if err != nil {
		return "", fmt.Errorf("list low stock: %w", err)
	}

	threshold := s.inventory.Policy().LowStockThreshold
	if len(medicines) == 0 {
		return fmt.Sprintf("No medicine is at or below %d units.", threshold), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Low stock (%d):", len(medicines))
	for i, m := range medicines {
		if i == maxListedItems {
			fmt.Fprintf(&b, "\n...and %d more", len(medicines)-maxListedItems)
			break
		}
		if m.Quantity <= 0 {
			fmt.Fprintf(&b, "\n- %s: sold out", m.Name)
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %d left", m.Name, m.Quantity)
	}
	return b.String(), nil
}

func (s *Service) expiring(ctx context.Context, cmd models.Command) (string, error) {
	days := s.inventory.Policy().ExpiryWindowDays
	if len(cmd.Args) > 0 {
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n <= 0 {
			return "", ErrInvalidArguments
		}
		days = n
	}

	medicines, err := s.inventory.Expiring(ctx, days)
	if err != nil {
		return "", fmt.Errorf("list expiring: %w", err)
	}

	if len(medicines) == 0 {
		return fmt.Sprintf("Nothing expires within %d days.", days), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Expiring within %d days (%d):", days, len(medicines))
	for i, m := range medicines {
		if i == maxListedItems {
			fmt.Fprintf(&b, "\n...and %d more", len(medicines)-maxListedItems)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s (%d in stock)", m.Name, m.ExpiryDate.Format(dateFormat), m.Quantity)
	}
	return b.String(), nil
}

func (s *Service) stock(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) == 0 {
		return "", ErrInvalidArguments
	}
	name := strings.Join(cmd.Args, " ")

	medicines, err := s.inventory.List(ctx, name, "")
	if err != nil {
		return "", fmt.Errorf("search stock: %w", err)
	}

	if len(medicines) == 0 {
		return fmt.Sprintf("No medicine matches %q.", name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock for %q:", name)
	for i, m := range medicines {
		if i == maxListedItems {
			fmt.Fprintf(&b, "\n...and %d more", len(medicines)-maxListedItems)
			break
		}
		fmt.Fprintf(&b, "\n- %s (%s): %d @ %s, expires %s", m.Name, m.Manufacturer, m.Quantity, m.Price.StringFixed(2), m.ExpiryDate.Format(dateFormat))
	}
	return b.String(), nil
}

func (s *Service) patient(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) != 1 {
		return "", ErrInvalidArguments
	}

	p, err := s.patients.Lookup(ctx, cmd.Args[0])
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Sprintf("No patient found for %s.", cmd.Args[0]), nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup patient: %w", err)
	}

	message := fmt.Sprintf("%s (%s), age %d, contact %s\nBills: %d, total billed %s",
		p.Name, p.PatientID, p.Age, p.Contact, len(p.Bills), p.TotalBilled().StringFixed(2))

	if bills := p.BillsNewestFirst(); len(bills) > 0 {
		last := bills[0]
		message += fmt.Sprintf("\nLast bill: %s, %s (%s)", last.CreatedAt.Format(dateFormat), last.TotalAmount.StringFixed(2), last.Status)
	}
	return message, nil
}
