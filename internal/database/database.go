// Package database opens the Postgres pool and bootstraps the schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Schema is applied by EnsureSchema. Every statement is idempotent.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS numero_anonyme_seq;

CREATE TABLE IF NOT EXISTS types_demande (
	id BIGINT PRIMARY KEY,
	libelle TEXT NOT NULL,
	profils_eligibles BIGINT[] NOT NULL DEFAULT '{}',
	accompagnement_requis BOOLEAN NOT NULL DEFAULT FALSE,
	controle_conformite BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS campagnes (
	id BIGINT PRIMARY KEY,
	type_demande_id BIGINT NOT NULL REFERENCES types_demande(id),
	commission_id BIGINT,
	debut DATE NOT NULL,
	fin DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS profils (
	id BIGINT PRIMARY KEY,
	libelle TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chartes (
	id BIGINT PRIMARY KEY,
	libelle TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profil_chartes (
	profil_id BIGINT NOT NULL REFERENCES profils(id),
	charte_id BIGINT NOT NULL REFERENCES chartes(id),
	PRIMARY KEY (profil_id, charte_id)
);

CREATE TABLE IF NOT EXISTS utilisateurs (
	uid TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	nom TEXT NOT NULL DEFAULT '',
	prenom TEXT NOT NULL DEFAULT '',
	numero_etudiant TEXT NOT NULL DEFAULT '',
	annee_naissance INT NOT NULL DEFAULT 0,
	sexe TEXT NOT NULL DEFAULT '',
	numero_anonyme BIGINT UNIQUE,
	roles TEXT[] NOT NULL DEFAULT '{}',
	etat_avis_es TEXT NOT NULL DEFAULT 'NON_RENSEIGNE',
	etat_decision TEXT NOT NULL DEFAULT 'AUCUNE'
);

CREATE TABLE IF NOT EXISTS demandes (
	id BIGSERIAL PRIMARY KEY,
	etat TEXT NOT NULL,
	campagne_id BIGINT NOT NULL REFERENCES campagnes(id),
	demandeur_uid TEXT NOT NULL REFERENCES utilisateurs(uid),
	commentaire TEXT NOT NULL DEFAULT '',
	profil_attribue_id BIGINT REFERENCES profils(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_demandes_etat ON demandes(etat);

CREATE TABLE IF NOT EXISTS modifications_etat_demande (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL UNIQUE,
	demande_id BIGINT NOT NULL REFERENCES demandes(id),
	etat_precedent TEXT NOT NULL,
	etat TEXT NOT NULL,
	profil_id BIGINT,
	acteur_uid TEXT NOT NULL,
	commentaire TEXT NOT NULL DEFAULT '',
	date TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_modifications_demande ON modifications_etat_demande(demande_id, date);

CREATE TABLE IF NOT EXISTS chartes_demandeur (
	id BIGSERIAL PRIMARY KEY,
	demande_id BIGINT NOT NULL REFERENCES demandes(id),
	charte_id BIGINT NOT NULL REFERENCES chartes(id),
	libelle TEXT NOT NULL,
	validee_le TIMESTAMPTZ,
	UNIQUE (demande_id, charte_id)
);

CREATE TABLE IF NOT EXISTS reponses (
	demandeur_uid TEXT NOT NULL,
	campagne_id BIGINT NOT NULL,
	question TEXT NOT NULL,
	valeur TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (demandeur_uid, campagne_id, question)
);

CREATE TABLE IF NOT EXISTS sportifs_haut_niveau (
	numero_psqs TEXT PRIMARY KEY,
	nom TEXT NOT NULL DEFAULT '',
	prenom TEXT NOT NULL DEFAULT '',
	annee INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS beneficiaires (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL REFERENCES utilisateurs(uid),
	profil_id BIGINT NOT NULL REFERENCES profils(id),
	demande_id BIGINT UNIQUE REFERENCES demandes(id),
	gestionnaire_uid TEXT NOT NULL DEFAULT '',
	debut DATE NOT NULL,
	fin DATE
);
CREATE INDEX IF NOT EXISTS idx_beneficiaires_uid ON beneficiaires(uid);

CREATE TABLE IF NOT EXISTS amenagements (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	categorie TEXT NOT NULL,
	type TEXT NOT NULL,
	debut DATE NOT NULL,
	fin DATE
);
CREATE INDEX IF NOT EXISTS idx_amenagements_uid ON amenagements(uid);

CREATE TABLE IF NOT EXISTS inscriptions (
	uid TEXT NOT NULL,
	composante TEXT NOT NULL DEFAULT '',
	formation TEXT NOT NULL DEFAULT '',
	type_diplome TEXT NOT NULL DEFAULT '',
	regime TEXT NOT NULL DEFAULT '',
	debut DATE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inscriptions_uid ON inscriptions(uid, debut);

CREATE TABLE IF NOT EXISTS entretiens (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS avis_es (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	debut DATE NOT NULL,
	fin DATE
);

CREATE TABLE IF NOT EXISTS evenements (
	id BIGSERIAL PRIMARY KEY,
	libelle TEXT NOT NULL,
	date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS fichiers (
	id BIGSERIAL PRIMARY KEY,
	nom TEXT NOT NULL,
	type_mime TEXT NOT NULL,
	object_key TEXT NOT NULL,
	taille BIGINT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pieces_jointes_beneficiaire (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	fichier_id BIGINT NOT NULL REFERENCES fichiers(id),
	description TEXT NOT NULL DEFAULT '',
	televerse_par TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions_amenagement_examens (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	annee INT NOT NULL,
	etat TEXT NOT NULL DEFAULT 'ATTENTE',
	fichier_id BIGINT REFERENCES fichiers(id),
	piece_jointe_id BIGINT REFERENCES pieces_jointes_beneficiaire(id),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bilans (
	id BIGSERIAL PRIMARY KEY,
	debut DATE NOT NULL,
	fin DATE NOT NULL,
	parametres JSONB NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	date_generation TIMESTAMPTZ,
	fichier_id BIGINT REFERENCES fichiers(id)
);

CREATE TABLE IF NOT EXISTS effect_intents (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	ref BIGINT NOT NULL,
	status TEXT NOT NULL,
	attempts INT NOT NULL DEFAULT 1,
	object_key TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_effect_intents_open ON effect_intents(kind, ref) WHERE status IN ('pending', 'failed');
CREATE INDEX IF NOT EXISTS idx_effect_intents_stale ON effect_intents(updated_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	task_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	attempts INT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates every table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
