package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/database"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/workflow"
)

const dateLayout = "2006-01-02"

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newTransitionCmd() *cobra.Command {
	var (
		acteur      string
		profil      int64
		commentaire string
	)
	cmd := &cobra.Command{
		Use:   "transition <demandeId> <etat>",
		Short: "Move a demande to a new state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			etat, err := parseEtat(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				t := workflow.Transition{DemandeID: id, Etat: etat, Acteur: acteur, Commentaire: commentaire}
				if profil > 0 {
					t.ProfilID = &profil
				}
				if err := rt.components.Workflow.Transitioner().Apply(ctx, t); err != nil {
					return err
				}
				if err := rt.drain(ctx); err != nil {
					return err
				}
				d, err := rt.adapters.Repo.Demande(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "demande %d: %s\n", d.ID, d.Etat)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&acteur, "acteur", "", "uid of the staff member applying the transition")
	cmd.Flags().Int64Var(&profil, "profil", 0, "profile granted with PROFIL_VALIDE")
	cmd.Flags().StringVar(&commentaire, "commentaire", "", "comment recorded in the transition log")
	_ = cmd.MarkFlagRequired("acteur")
	return cmd
}

func newTransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions <demandeId>",
		Short: "Print the transition log of a demande",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				mods, err := rt.adapters.Repo.Modifications(ctx, id)
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(cmd.OutOrStdout(), mods)
				}
				renderTransitions(cmd.OutOrStdout(), mods)
				return nil
			})
		},
	}
}

func newDecisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decision",
		Short: "Exam accommodation decisions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "edit <decisionId>",
		Short: "Render, mail and archive a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.bus.Dispatch(ctx, queue.EditionDecision{DecisionID: id}); err != nil {
					return err
				}
				if err := rt.drain(ctx); err != nil {
					return err
				}
				etat, err := rt.adapters.Repo.DecisionStatut(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "decision %d: %s\n", id, etat)
				return nil
			})
		},
	})
	return cmd
}

func newBilanCmd() *cobra.Command {
	var (
		debut, fin  string
		params      []string
		description string
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create an activity report job and generate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBilan(debut, fin, params, description)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if err := rt.adapters.Repo.CreateBilan(ctx, b); err != nil {
					return err
				}
				if err := rt.bus.Dispatch(ctx, queue.GenerationBilan{BilanID: b.ID}); err != nil {
					return err
				}
				if err := rt.drain(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bilan %d queued\n", b.ID)
				return nil
			})
		},
	}
	generate.Flags().StringVar(&debut, "debut", "", "first day of the period (YYYY-MM-DD)")
	generate.Flags().StringVar(&fin, "fin", "", "last day of the period (YYYY-MM-DD)")
	generate.Flags().StringArrayVar(&params, "param", nil, "filter as nom=v1,v2 (repeatable)")
	generate.Flags().StringVar(&description, "description", "", "free text stored with the report")
	_ = generate.MarkFlagRequired("debut")
	_ = generate.MarkFlagRequired("fin")

	cmd := &cobra.Command{
		Use:   "bilan",
		Short: "Activity reports",
	}
	cmd.AddCommand(generate)
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair stale effect intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if rt.local == nil {
					if err := rt.bus.Dispatch(ctx, queue.Reconciliation{}); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "reconciliation queued")
					return nil
				}
				report, err := rt.components.Sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "examined %d, redispatched %d, abandoned %d, objects removed %d\n",
					report.Examined, report.Redispatched, report.Abandoned, report.Removed)
				return nil
			})
		},
	}
}

func newDeadLettersCmd() *cobra.Command {
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				dls, err := rt.adapters.Repo.DeadLetters(ctx, limit)
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(cmd.OutOrStdout(), dls)
				}
				renderDeadLetters(cmd.OutOrStdout(), dls)
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Messages that exhausted their retries",
	}
	cmd.AddCommand(list)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

var etats = []model.EtatDemande{
	model.EtatEnCours, model.EtatReceptionnee, model.EtatConforme, model.EtatNonConforme,
	model.EtatAttenteCommission, model.EtatProfilValide, model.EtatAttenteCharte,
	model.EtatAttenteAccompagnement, model.EtatRefusee, model.EtatValidee,
}

func parseEtat(s string) (model.EtatDemande, error) {
	for _, e := range etats {
		if strings.EqualFold(string(e), s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown etat %q", s)
}

func newBilan(debut, fin string, params []string, description string) (*model.Bilan, error) {
	d, err := time.Parse(dateLayout, debut)
	if err != nil {
		return nil, fmt.Errorf("invalid --debut: %w", err)
	}
	f, err := time.Parse(dateLayout, fin)
	if err != nil {
		return nil, fmt.Errorf("invalid --fin: %w", err)
	}
	if f.Before(d) {
		return nil, fmt.Errorf("--fin %s is before --debut %s", fin, debut)
	}
	b := &model.Bilan{Debut: d, Fin: f, Description: description}
	for _, p := range params {
		nom, valeurs, ok := strings.Cut(p, "=")
		if !ok || nom == "" || valeurs == "" {
			return nil, fmt.Errorf("invalid --param %q, expected nom=v1,v2", p)
		}
		b.Parametres = append(b.Parametres, model.BilanParametre{Nom: nom, Valeurs: strings.Split(valeurs, ",")})
	}
	return b, nil
}

func renderTransitions(w io.Writer, mods []model.ModificationEtatDemande) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Date", "From", "To", "Profil", "Acteur", "Commentaire"})
	for _, m := range mods {
		profil := ""
		if m.ProfilID != nil {
			profil = strconv.FormatInt(*m.ProfilID, 10)
		}
		tw.AppendRow(table.Row{m.Date.Format(time.RFC3339), m.EtatPrecedent, m.Etat, profil, m.ActeurUID, m.Commentaire})
	}
	tw.Render()
}

func renderDeadLetters(w io.Writer, dls []model.DeadLetter) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Task", "Attempts", "Reason", "Created"})
	for _, dl := range dls {
		tw.AppendRow(table.Row{dl.ID, dl.TaskType, dl.Attempts, dl.Reason, dl.CreatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
