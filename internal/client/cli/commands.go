package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/client/client"
	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/filex"
	"github.com/dmitrijs2005/databazaar/internal/server/auth"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// saltSize is the byte length of a generated passphrase salt.
const saltSize = 16

func parseID(fs *flag.FlagSet) (int64, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%s: expected exactly one listing id: %w", fs.Name(), ErrUsage)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: bad listing id %q: %w", fs.Name(), fs.Arg(0), ErrUsage)
	}
	return id, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// keygen prints a random key, or derives one from a passphrase. A derived
// key is reproducible from the passphrase and the printed salt.
func (a *App) keygen(ctx context.Context, args []string) error {
	fs := a.flagSet("keygen")
	usePassphrase := fs.Bool("passphrase", false, "derive the key from a passphrase")
	saltHex := fs.String("salt", "", "hex salt for -passphrase (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if !*usePassphrase {
		key, err := cryptox.GenerateKey()
		if err != nil {
			return err
		}
		defer common.WipeByteArray(key)
		fmt.Fprintln(a.out, cryptox.FormatKey(key))
		return nil
	}

	if *saltHex == "" {
		s, err := common.MakeRandHexString(saltSize)
		if err != nil {
			return err
		}
		*saltHex = s
	}
	salt, err := hex.DecodeString(*saltHex)
	if err != nil {
		return fmt.Errorf("keygen: bad salt: %w", ErrUsage)
	}

	pass, err := GetSecret(a.out, "Enter passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)
	if len(pass) == 0 {
		return fmt.Errorf("keygen: empty passphrase: %w", ErrUsage)
	}

	key := cryptox.DeriveKey(pass, salt)
	defer common.WipeByteArray(key)

	fmt.Fprintf(a.out, "salt: %s\nkey:  %s\n", *saltHex, cryptox.FormatKey(key))
	return nil
}

// token signs a bearer token with the server's secret. Meant for operators
// and local development.
func (a *App) token(ctx context.Context, args []string) error {
	fs := a.flagSet("token")
	user := fs.String("user", "", "owner identity to put in the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *user == "" {
		return fmt.Errorf("token: -user is required: %w", ErrUsage)
	}

	secret, err := GetSecret(a.out, "Enter server secret: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	tok, err := auth.GenerateToken(*user, secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}

func (a *App) upload(ctx context.Context, args []string) error {
	fs := a.flagSet("upload")
	name := fs.String("name", "", "listing name")
	description := fs.String("description", "", "listing description")
	price := fs.Int64("price", 0, "price in tokens")
	category := fs.String("category", "", "category")
	tags := fs.String("tags", "", "comma-separated tags")
	chunkSize := fs.Int("chunk-size", 0, "chunk size in bytes (server default when 0)")
	keyHex := fs.String("key", "", "hex asset key (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("upload: expected exactly one file: %w", ErrUsage)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	key, err := resolveKey(a.out, *keyHex)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	id, err := a.api.Upload(ctx, client.UploadParams{
		Name:        *name,
		Description: *description,
		Price:       *price,
		Category:    *category,
		Tags:        splitTags(*tags),
		ChunkSize:   *chunkSize,
	}, data, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "uploaded listing %d (%d bytes)\n", id, len(data))
	return nil
}

func (a *App) download(ctx context.Context, args []string) error {
	fs := a.flagSet("download")
	keyHex := fs.String("key", "", "hex asset key (prompted when empty)")
	out := fs.String("out", "", "output file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}

	key, err := resolveKey(a.out, *keyHex)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	data, err := a.api.Download(ctx, id, key)
	if err != nil {
		return err
	}

	if *out == "" || *out == "-" {
		_, err = a.out.Write(data)
		return err
	}
	if err := filex.WriteFileAtomic(*out, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved listing %d to %s (%d bytes)\n", id, *out, len(data))
	return nil
}

func (a *App) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	owner := fs.String("owner", "", "only listings of this owner")
	category := fs.String("category", "", "only this category")
	tag := fs.String("tag", "", "only listings with this tag")
	drafts := fs.Bool("drafts", false, "include listings that are not complete")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	all, err := a.api.List(ctx, client.ListParams{
		Owner:         *owner,
		Category:      *category,
		Tag:           *tag,
		IncludeDrafts: *drafts,
	})
	if err != nil {
		return err
	}
	a.printListings(all)
	return nil
}

func (a *App) mine(ctx context.Context, args []string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	all, err := a.api.Mine(ctx)
	if err != nil {
		return err
	}
	a.printListings(all)
	return nil
}

func (a *App) show(ctx context.Context, args []string) error {
	fs := a.flagSet("show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	l, err := a.api.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printListing(l)
	return nil
}

func (a *App) update(ctx context.Context, args []string) error {
	fs := a.flagSet("update")
	description := fs.String("description", "", "new description")
	price := fs.Int64("price", 0, "new price")
	category := fs.String("category", "", "new category")
	tags := fs.String("tags", "", "new comma-separated tags")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}

	var upd models.ListingUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "description":
			upd.Description = description
		case "price":
			upd.Price = price
		case "category":
			upd.Category = category
		case "tags":
			t := splitTags(*tags)
			if t == nil {
				t = []string{}
			}
			upd.Tags = &t
		}
	})
	if upd.IsEmpty() {
		return fmt.Errorf("update: nothing to change: %w", ErrUsage)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	l, err := a.api.Update(ctx, id, upd)
	if err != nil {
		return err
	}
	a.printListing(l)
	return nil
}

// delete asks for confirmation unless -y is given.
func (a *App) delete(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}

	if !*yes {
		answer, err := GetSimpleText(a.in, fmt.Sprintf("Delete listing %d and all of its content? [y/N]", id), a.out)
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Fprintln(a.out, "aborted")
			return nil
		}
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.api.Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("listing %d does not exist: %w", id, err)
		}
		return err
	}
	fmt.Fprintf(a.out, "deleted listing %d\n", id)
	return nil
}

func (a *App) printListings(all []*models.Listing) {
	if len(all) == 0 {
		fmt.Fprintln(a.out, "no listings")
		return
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tPRICE\tSTATE\tSIZE\tTAGS")
	for _, l := range all {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
			l.ID, l.Name, l.Owner, l.Price, l.State, l.TotalSize, strings.Join(l.Tags, ","))
	}
	_ = tw.Flush()
}

func (a *App) printListing(l *models.Listing) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", l.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", l.Name)
	fmt.Fprintf(tw, "Description:\t%s\n", l.Description)
	fmt.Fprintf(tw, "Owner:\t%s\n", l.Owner)
	fmt.Fprintf(tw, "Price:\t%d\n", l.Price)
	fmt.Fprintf(tw, "Category:\t%s\n", l.Category)
	fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(l.Tags, ","))
	fmt.Fprintf(tw, "State:\t%s\n", l.State)
	fmt.Fprintf(tw, "Chunks:\t%d\n", l.TotalChunks)
	fmt.Fprintf(tw, "Size:\t%d\n", l.TotalSize)
	fmt.Fprintf(tw, "Updated:\t%s\n", l.UpdatedAt.Format(time.RFC3339))
	_ = tw.Flush()
}
